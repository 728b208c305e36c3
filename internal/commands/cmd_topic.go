package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/printer"
)

type TopicCmd struct {
	flags *Flags
	with  string
	clear bool
}

// NewTopicCmd creates a new topic command.
func NewTopicCmd(flags *Flags) *TopicCmd {
	return &TopicCmd{flags: flags}
}

// Register adds the topic command to the application.
func (cmd *TopicCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "topic",
		Usage:     "Show or set a conversation topic",
		UsageText: "parley topic --with <participant> [topic]",
		Description: `Without an argument prints the current topic. With an argument sets it,
and with --clear removes it.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "with",
				Aliases:     []string{"w"},
				Usage:       "conversation partner",
				Required:    true,
				Destination: &cmd.with,
			},
			&cli.BoolFlag{
				Name:        "clear",
				Usage:       "remove the topic",
				Destination: &cmd.clear,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *TopicCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	me, err := cmd.flags.Identity()
	if err != nil {
		return err
	}

	key, err := convo.DeriveKey(me, convo.ParticipantID(cmd.with))
	if err != nil {
		return err
	}

	if c.NArg() == 0 && !cmd.clear {
		summary, err := cmd.flags.Service.Room(ctx, key)
		if err != nil {
			return fmt.Errorf("get conversation: %w", err)
		}
		if summary.Topic == nil {
			p.Infof("No topic set")
			return nil
		}
		_, _ = fmt.Fprintln(c.Root().Writer, *summary.Topic)
		return nil
	}

	topic := ""
	if !cmd.clear {
		topic = c.Args().Get(0)
	}

	summary, err := cmd.flags.Service.SetTopic(ctx, key, me, topic)
	if err != nil {
		return fmt.Errorf("set topic: %w", err)
	}

	if summary.Topic == nil {
		p.Successf("Topic cleared")
	} else {
		p.Successf("Topic set to %q", *summary.Topic)
	}
	return nil
}
