package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/notify"
	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/internal/store/jsonfile"
)

type NotifyCmd struct {
	flags       *Flags
	limit       int
	drain       bool
	json        bool
	concurrency int
	deliver     string
}

// NewNotifyCmd creates a new notify command.
func NewNotifyCmd(flags *Flags) *NotifyCmd {
	return &NotifyCmd{flags: flags}
}

// Register adds the notify command group to the application.
func (cmd *NotifyCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "notify",
		Usage: "Inspect and process new-message notifications",
		Commands: []*cli.Command{
			{
				Name:        "outbox",
				Usage:     "List or drain notifications waiting in the local outbox",
				UsageText: "parley notify outbox [--limit N] [--drain] [--json]",
				Description: `Shows the newest notifications written by the outbox driver.

With --drain the oldest N notifications are printed in queue order and
removed from the outbox, so a push collaborator can consume them with
'parley notify outbox --drain --json'. The outbox keeps at most 1000
entries; older undrained ones are dropped.`,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:        "limit",
						Aliases:     []string{"n"},
						Usage:       "maximum number of notifications to show",
						Value:       20,
						Destination: &cmd.limit,
					},
					&cli.BoolFlag{
						Name:        "drain",
						Usage:       "remove the listed notifications, oldest first",
						Destination: &cmd.drain,
					},
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output JSON lines",
						Destination: &cmd.json,
					},
				},
				Action: cmd.runOutbox,
			},
			{
				Name:      "worker",
				Usage:     "Consume push tasks from the asynq queue",
				UsageText: "parley notify worker [--deliver log|outbox]",
				Description: `Runs an asynq worker on notifications.redis_url that consumes the push
tasks enqueued by the asynq driver. Each notification is handed to the
--deliver target: "log" writes it to the log, "outbox" appends it to the
local outbox file.`,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:        "concurrency",
						Usage:       "number of tasks processed in parallel",
						Value:       4,
						Destination: &cmd.concurrency,
					},
					&cli.StringFlag{
						Name:        "deliver",
						Usage:       "delivery target (log, outbox)",
						Value:       "log",
						Destination: &cmd.deliver,
					},
				},
				Action: cmd.runWorker,
			},
		},
	})

	return app
}

func (cmd *NotifyCmd) runOutbox(ctx context.Context, c *cli.Command) error {
	outbox := jsonfile.NewOutboxStore(cmd.flags.Config.OutboxDir())

	var (
		pending []notify.Notification
		err     error
	)
	if cmd.drain {
		pending, err = outbox.Drain(ctx, cmd.limit)
	} else {
		pending, err = outbox.List(cmd.limit)
	}
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}

	out := c.Root().Writer

	if cmd.json {
		for _, n := range pending {
			if err := writeJSON(out, n); err != nil {
				return err
			}
		}
		return nil
	}

	if len(pending) == 0 {
		printer.Ctx(ctx).Infof("Outbox is empty")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUEUED\tFROM\tTO\tPREVIEW")
	for _, n := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			printer.Relative(n.QueuedAt, now),
			n.SenderID,
			n.RecipientID,
			printer.Truncate(n.BodyPreview, 48),
		)
	}
	return w.Flush()
}

func (cmd *NotifyCmd) runWorker(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	if cfg.Notifications.RedisURL == "" {
		return fmt.Errorf("notifications.redis_url is not configured")
	}

	var deliver notify.Dispatcher
	switch cmd.deliver {
	case "log":
		deliver = notify.NewLogDispatcher(log.Logger)
	case "outbox":
		deliver = jsonfile.NewOutboxStore(cfg.OutboxDir())
	default:
		return fmt.Errorf("invalid --deliver %q, use log or outbox", cmd.deliver)
	}

	worker, err := notify.NewPushWorker(
		cfg.Notifications.RedisURL,
		cfg.Notifications.Queue,
		cmd.concurrency,
		deliver,
		log.Logger,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Ctx(ctx).Infof("Consuming queue %q", cfg.Notifications.Queue)
	return worker.Run(ctx)
}
