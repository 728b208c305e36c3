package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/validate"
	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/internal/styles"
)

type SendCmd struct {
	flags *Flags
	to    string
	file  string
	json  bool
}

// NewSendCmd creates a new send command.
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application.
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a message",
		UsageText: "parley send --to <participant> [message]",
		Description: `Appends a message to your conversation with another participant.

The message can be provided as:
- A command-line argument
- From a file with -f/--file
- From stdin when input is piped
- An interactive prompt when stdin is a terminal

Examples:
  parley --as alice send --to bob "lunch?"
  echo "running late" | parley --as alice send --to bob
  parley --as alice send --to bob -f notes.md`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "to",
				Aliases:     []string{"t"},
				Usage:       "recipient participant id",
				Required:    true,
				Destination: &cmd.to,
			},
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read message from file",
				Destination: &cmd.file,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the stored message as JSON",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	me, err := cmd.flags.Identity()
	if err != nil {
		return err
	}

	body, err := cmd.readBody(c)
	if err != nil {
		return err
	}

	msg, err := cmd.flags.Service.Send(ctx, me, convo.ParticipantID(cmd.to), body)
	if err != nil {
		if msg.ID != "" {
			p.Warnf("message %s was stored but the conversation summary is stale; run 'parley doctor --fix'", msg.ID)
		}
		return fmt.Errorf("send message: %w", err)
	}

	if cmd.json {
		return writeJSON(c.Root().Writer, msg)
	}

	p.Successf("Sent to %s", cmd.to)
	return nil
}

func (cmd *SendCmd) readBody(c *cli.Command) (string, error) {
	switch {
	case c.NArg() >= 1:
		return c.Args().Get(0), nil
	case cmd.file != "":
		data, err := os.ReadFile(cmd.file)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(data), nil
	case term.IsTerminal(int(os.Stdin.Fd())):
		return promptBody(cmd.to)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

// promptBody asks for a message interactively.
func promptBody(to string) (string, error) {
	var body string

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title(fmt.Sprintf("Message to %s", to)).
				Value(&body).
				Validate(func(s string) error {
					_, err := validate.Body(s)
					return err
				}),
		),
	).WithTheme(styles.FormTheme()).Run()
	if err != nil {
		return "", fmt.Errorf("compose message: %w", err)
	}

	return body, nil
}
