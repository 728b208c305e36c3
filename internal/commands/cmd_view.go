package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/feed/timeline"
	"github.com/hay-kot/parley/internal/printer"
)

type ViewCmd struct {
	flags    *Flags
	with     string
	follow   bool
	json     bool
	markRead bool
}

// NewViewCmd creates a new view command.
func NewViewCmd(flags *Flags) *ViewCmd {
	return &ViewCmd{flags: flags}
}

// Register adds the view command to the application.
func (cmd *ViewCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "view",
		Usage:     "Show a conversation",
		UsageText: "parley view --with <participant> [--follow]",
		Description: `Prints the conversation with date separators between days. Unread
incoming messages are marked with a dot.

With --follow the command keeps running and prints new messages as they
arrive, including ones written by other parley processes. With --json every
item (or, when following, every update) is written as one JSON line.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "with",
				Aliases:     []string{"w"},
				Usage:       "conversation partner",
				Required:    true,
				Destination: &cmd.with,
			},
			&cli.BoolFlag{
				Name:        "follow",
				Aliases:     []string{"f"},
				Usage:       "keep printing new messages",
				Destination: &cmd.follow,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output JSON lines",
				Destination: &cmd.json,
			},
			&cli.BoolFlag{
				Name:        "mark-read",
				Usage:       "mark the conversation read after printing",
				Destination: &cmd.markRead,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ViewCmd) run(ctx context.Context, c *cli.Command) error {
	me, err := cmd.flags.Identity()
	if err != nil {
		return err
	}
	partner := convo.ParticipantID(cmd.with)

	if cmd.follow {
		return cmd.runFollow(ctx, c.Root().Writer, me, partner)
	}

	view, err := cmd.flags.Service.Conversation(ctx, me, partner, nil)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	out := c.Root().Writer
	if cmd.json {
		for _, it := range view.Items {
			if err := writeJSON(out, it); err != nil {
				return err
			}
		}
	} else {
		if len(view.Items) == 0 {
			printer.Ctx(ctx).Infof("No messages with %s yet", partner)
		}
		cmd.printItems(out, view.Items)
	}

	if cmd.markRead && view.UnreadCount() > 0 {
		if _, err := cmd.flags.Service.MarkRead(ctx, view.Key, me, view.LastSentAt()); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}

	return nil
}

func (cmd *ViewCmd) runFollow(ctx context.Context, out io.Writer, me, partner convo.ParticipantID) error {
	feed, err := cmd.flags.Service.ConversationFeed(ctx, me, partner, nil)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	defer feed.Close()

	key, _ := convo.DeriveKey(me, partner)

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-feed.Updates():
			if !ok {
				if err := feed.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("conversation feed: %w", err)
				}
				return nil
			}

			if cmd.json {
				if err := writeJSON(out, upd); err != nil {
					return err
				}
			} else {
				cmd.printItems(out, upd.Appended)
			}

			if cmd.markRead && feed.UnreadCount() > 0 {
				if last, ok := lastMessage(upd.Appended); ok {
					if _, err := cmd.flags.Service.MarkRead(ctx, key, me, last); err != nil {
						printer.Ctx(ctx).Warnf("mark read: %v", err)
					}
				}
			}
		}
	}
}

func (cmd *ViewCmd) printItems(out io.Writer, items []timeline.Item) {
	loc := cmd.flags.Config.Location()
	for _, it := range items {
		_, _ = fmt.Fprintln(out, printer.FormatItem(it, loc))
	}
}
