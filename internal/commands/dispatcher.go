package commands

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/notify"
	"github.com/hay-kot/parley/internal/store/jsonfile"
)

// NewDispatcher builds the notification driver named in cfg.
func NewDispatcher(cfg *config.Config, log zerolog.Logger) (notify.Dispatcher, error) {
	n := cfg.Notifications

	switch n.Driver {
	case config.DriverOutbox:
		return jsonfile.NewOutboxStore(cfg.OutboxDir()), nil
	case config.DriverAsynq:
		d, err := notify.NewAsynqDispatcher(n.RedisURL, n.Queue)
		if err != nil {
			return nil, fmt.Errorf("create asynq dispatcher: %w", err)
		}
		return d, nil
	case config.DriverLog:
		return notify.NewLogDispatcher(log), nil
	case config.DriverNone:
		return notify.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown notification driver %q", n.Driver)
	}
}
