package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/server"
)

type ServeCmd struct {
	flags *Flags
	addr  string
}

// NewServeCmd creates a new serve command.
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application.
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Serve the HTTP and WebSocket API",
		UsageText: "parley serve [--addr host:port]",
		Description: `Serves conversations over HTTP. Callers identify themselves with the
X-Participant-ID header.

  GET  /v1/inbox                               inbox (WebSocket: live inbox)
  GET  /v1/conversations/{partner}             conversation view
  POST /v1/conversations/{partner}/messages    send {"body": "..."}
  POST /v1/conversations/{partner}/read        mark read {"upto": "..."}
  PUT  /v1/conversations/{partner}/topic       set topic {"topic": "..."}
  GET  /v1/conversations/{partner}/feed        WebSocket conversation feed`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("PARLEY_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config.Server
	if cmd.addr != "" {
		cfg.Addr = cmd.addr
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cmd.flags.Service, cfg, log.Logger)
	return srv.ListenAndServe(ctx)
}
