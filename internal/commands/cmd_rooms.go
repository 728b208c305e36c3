package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/printer"
)

type RoomsCmd struct {
	flags *Flags
	match string
	json  bool
}

// NewRoomsCmd creates a new rooms command.
func NewRoomsCmd(flags *Flags) *RoomsCmd {
	return &RoomsCmd{flags: flags}
}

// Register adds the rooms command to the application.
func (cmd *RoomsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "rooms",
		Usage:     "List every stored conversation",
		UsageText: "parley rooms [--match <glob>]",
		Description: `Displays all room summaries in the data directory regardless of who is
asking. Useful for operators inspecting a shared data directory.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "match",
				Aliases:     []string{"m"},
				Usage:       "only show conversation keys matching a glob",
				Destination: &cmd.match,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output JSON lines",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RoomsCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	summaries, err := cmd.flags.Service.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	var rooms []room.Summary
	for _, s := range summaries {
		ok, err := matchKey(cmd.match, s.Key)
		if err != nil {
			return err
		}
		if ok {
			rooms = append(rooms, s)
		}
	}

	out := c.Root().Writer

	if cmd.json {
		for _, s := range rooms {
			if err := writeJSON(out, s); err != nil {
				return err
			}
		}
		return nil
	}

	if len(rooms) == 0 {
		p.Infof("No rooms found")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tPARTICIPANTS\tTOPIC\tVERSION\tACTIVITY")

	for _, s := range rooms {
		participants := make([]string, len(s.Participants))
		for i, id := range s.Participants {
			participants[i] = string(id)
		}
		topic := s.TopicValue()
		if topic == "" {
			topic = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.Key,
			strings.Join(participants, ","),
			printer.Truncate(topic, 32),
			s.Version,
			printer.Relative(s.LastActivityAt, now),
		)
	}

	return w.Flush()
}
