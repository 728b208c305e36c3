package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/printer"
)

type ReadCmd struct {
	flags *Flags
	with  string
	upto  string
}

// NewReadCmd creates a new read command.
func NewReadCmd(flags *Flags) *ReadCmd {
	return &ReadCmd{flags: flags}
}

// Register adds the read command to the application.
func (cmd *ReadCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "read",
		Usage:     "Mark a conversation as read",
		UsageText: "parley read --with <participant> [--upto <time>]",
		Description: `Advances your read marker in the conversation. Markers never move
backwards, so passing an older --upto is a no-op.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "with",
				Aliases:     []string{"w"},
				Usage:       "conversation partner",
				Required:    true,
				Destination: &cmd.with,
			},
			&cli.StringFlag{
				Name:        "upto",
				Usage:       "RFC 3339 timestamp to mark read up to (default: now)",
				Destination: &cmd.upto,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ReadCmd) run(ctx context.Context, c *cli.Command) error {
	me, err := cmd.flags.Identity()
	if err != nil {
		return err
	}

	upto, err := parseUpto(cmd.upto)
	if err != nil {
		return err
	}

	key, err := convo.DeriveKey(me, convo.ParticipantID(cmd.with))
	if err != nil {
		return err
	}

	summary, err := cmd.flags.Service.MarkRead(ctx, key, me, upto)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	printer.Ctx(ctx).Successf("Read up to %s", summary.ReadMarker(me).Local().Format("2006-01-02 15:04:05"))
	return nil
}
