package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hay-kot/criterio"
	"github.com/hibiken/asynq"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/store/jsonfile"
)

// ConfigCheck validates the configuration, then looks at what it points to:
// the data directory and the notification driver.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

// NewConfigCheck creates a new configuration check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{
		config:     cfg,
		configPath: configPath,
	}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config loaded",
			Status: StatusFail,
			Detail: "configuration not loaded",
		})
		return result
	}

	if err := c.config.ValidateDeep(c.configPath); err != nil {
		result.Items = append(result.Items, validationItems(err)...)
		return result
	}

	result.Items = append(result.Items, c.fileItem())

	for _, w := range c.config.Warnings() {
		// The notifications item reports a disabled driver itself.
		if w.Item == "driver" {
			continue
		}
		result.Items = append(result.Items, CheckItem{
			Label:  w.Category + " (" + w.Item + ")",
			Status: StatusWarn,
			Detail: w.Message,
		})
	}

	result.Items = append(result.Items, c.dataDirItem(), c.notificationsItem())
	return result
}

func validationItems(err error) []CheckItem {
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return []CheckItem{{Label: "validation", Status: StatusFail, Detail: err.Error()}}
	}

	items := make([]CheckItem, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		label := fe.Field
		if label == "" {
			label = "validation"
		}
		items = append(items, CheckItem{Label: label, Status: StatusFail, Detail: fe.Err.Error()})
	}
	return items
}

func (c *ConfigCheck) fileItem() CheckItem {
	item := CheckItem{Label: "Config file", Status: StatusPass}
	if _, err := os.Stat(c.configPath); c.configPath == "" || err != nil {
		item.Detail = "not found, using defaults"
		return item
	}
	item.Detail = c.configPath
	return item
}

// dataDirItem reports whether the data directory exists and accepts writes.
func (c *ConfigCheck) dataDirItem() CheckItem {
	dir := c.config.DataDir
	item := CheckItem{Label: "Data directory"}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		item.Status = StatusWarn
		item.Detail = fmt.Sprintf("%s does not exist yet, it is created on the first send", dir)
		return item
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("%s is not writable: %v", dir, err)
		return item
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	item.Status = StatusPass
	item.Detail = dir
	return item
}

func (c *ConfigCheck) notificationsItem() CheckItem {
	n := c.config.Notifications
	item := CheckItem{Label: "Notifications", Status: StatusPass}

	switch n.Driver {
	case config.DriverOutbox:
		pending, err := jsonfile.NewOutboxStore(c.config.OutboxDir()).List(0)
		if err != nil {
			item.Status = StatusFail
			item.Detail = fmt.Sprintf("outbox unreadable: %v", err)
			return item
		}
		item.Detail = fmt.Sprintf("outbox driver, %d pending", len(pending))
	case config.DriverAsynq:
		// Validation already parsed the URL. Only the address is shown so
		// credentials stay out of the report.
		opt, _ := asynq.ParseRedisURI(n.RedisURL)
		addr := "redis"
		if r, ok := opt.(asynq.RedisClientOpt); ok {
			addr = r.Addr
		}
		item.Detail = fmt.Sprintf("asynq driver, queue %q on %s", n.Queue, addr)
	case config.DriverLog:
		item.Detail = "log driver, notifications are only logged"
	case config.DriverNone:
		item.Status = StatusWarn
		item.Detail = "disabled, recipients are not told about new messages"
	}
	return item
}
