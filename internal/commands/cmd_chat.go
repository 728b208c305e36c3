package commands

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/tui"
)

type ChatCmd struct {
	flags *Flags
	with  string
}

// NewChatCmd creates a new chat command.
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{flags: flags}
}

// Register adds the chat command to the application.
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Open an interactive chat",
		UsageText: "parley chat --with <participant>",
		Description: `Opens a full screen chat with another participant. New messages appear as
they arrive, and the conversation is marked read while the window has focus.
Message bodies are rendered as markdown.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "with",
				Aliases:     []string{"w"},
				Usage:       "conversation partner",
				Required:    true,
				Destination: &cmd.with,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ChatCmd) run(ctx context.Context, _ *cli.Command) error {
	me, err := cmd.flags.Identity()
	if err != nil {
		return err
	}
	partner := convo.ParticipantID(cmd.with)

	key, err := convo.DeriveKey(me, partner)
	if err != nil {
		return err
	}

	var topic string
	if summary, err := cmd.flags.Service.Room(ctx, key); err == nil {
		topic = summary.TopicValue()
	} else if !errors.Is(err, convo.ErrNotFound) {
		return fmt.Errorf("get conversation: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed, err := cmd.flags.Service.ConversationFeed(ctx, me, partner, nil)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	defer feed.Close()

	m := tui.New(cmd.flags.Service, feed, me, partner, tui.Options{
		Topic:    topic,
		Location: cmd.flags.Config.Location(),
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run chat: %w", err)
	}

	return nil
}
