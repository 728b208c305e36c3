package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/feed/inbox"
	"github.com/hay-kot/parley/internal/printer"
)

type InboxCmd struct {
	flags  *Flags
	follow bool
	json   bool
	match  string
	unread bool
}

// NewInboxCmd creates a new inbox command.
func NewInboxCmd(flags *Flags) *InboxCmd {
	return &InboxCmd{flags: flags}
}

// Register adds the inbox command to the application.
func (cmd *InboxCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "inbox",
		Usage:     "List your conversations",
		UsageText: "parley inbox [--follow] [--unread] [--match <glob>]",
		Description: `Lists the conversations you take part in, most recent activity first.
Conversations with messages you have not read are marked with a dot.

--match filters by conversation key using doublestar glob syntax, for
example "*bob*".`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "follow",
				Aliases:     []string{"f"},
				Usage:       "keep the inbox open and reprint on changes",
				Destination: &cmd.follow,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output JSON lines",
				Destination: &cmd.json,
			},
			&cli.StringFlag{
				Name:        "match",
				Aliases:     []string{"m"},
				Usage:       "only show conversation keys matching a glob",
				Destination: &cmd.match,
			},
			&cli.BoolFlag{
				Name:        "unread",
				Aliases:     []string{"u"},
				Usage:       "only show conversations with unread messages",
				Destination: &cmd.unread,
			},
		},
		Action: cmd.Run,
	})

	return app
}

// Flags returns the inbox flags so they can also be registered on the root
// command, where the inbox is the default action.
func (cmd *InboxCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "unread",
			Aliases:     []string{"u"},
			Usage:       "only show conversations with unread messages",
			Local:       true,
			Destination: &cmd.unread,
		},
	}
}

// Run prints the inbox of the acting participant.
func (cmd *InboxCmd) Run(ctx context.Context, c *cli.Command) error {
	me, err := cmd.flags.Identity()
	if err != nil {
		return err
	}

	// Validate the pattern before opening anything.
	if _, err := matchKey(cmd.match, ""); err != nil {
		return err
	}

	if cmd.follow {
		return cmd.runFollow(ctx, c.Root().Writer, me)
	}

	entries, err := cmd.flags.Service.Inbox(ctx, me)
	if err != nil {
		return fmt.Errorf("load inbox: %w", err)
	}

	entries = cmd.filter(entries)
	if len(entries) == 0 && !cmd.json {
		printer.Ctx(ctx).Infof("No conversations")
		return nil
	}

	return cmd.print(c.Root().Writer, me, entries)
}

func (cmd *InboxCmd) runFollow(ctx context.Context, out io.Writer, me convo.ParticipantID) error {
	feed, err := cmd.flags.Service.InboxFeed(ctx, me)
	if err != nil {
		return fmt.Errorf("open inbox: %w", err)
	}
	defer feed.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-feed.Updates():
			if !ok {
				if err := feed.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("inbox feed: %w", err)
				}
				return nil
			}

			if cmd.json {
				for _, e := range cmd.filter(upd.Changed) {
					if err := writeJSON(out, e); err != nil {
						return err
					}
				}
				continue
			}

			_, _ = fmt.Fprintf(out, "\n%s\n", time.Now().Format("15:04:05"))
			if err := cmd.print(out, me, cmd.filter(upd.Entries)); err != nil {
				return err
			}
		}
	}
}

func (cmd *InboxCmd) filter(entries []inbox.Entry) []inbox.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if cmd.unread && !e.Unread {
			continue
		}
		if ok, _ := matchKey(cmd.match, e.Key); !ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (cmd *InboxCmd) print(out io.Writer, me convo.ParticipantID, entries []inbox.Entry) error {
	if cmd.json {
		for _, e := range entries {
			if err := writeJSON(out, e); err != nil {
				return err
			}
		}
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, " \tWITH\tTOPIC\tLAST MESSAGE\tACTIVITY")
	for _, e := range entries {
		_, _ = fmt.Fprintln(w, printer.FormatEntry(e, me, now))
	}
	return w.Flush()
}
