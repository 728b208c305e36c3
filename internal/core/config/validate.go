package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/hibiken/asynq"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks file access, the timezone database, the
// redis connection string and the listen address, and reports every problem
// as a criterio.FieldErrors.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	errs = c.validateFileAccess(errs, configPath)
	errs = c.validateSubscriptions(errs)
	errs = c.validateNotifications(errs)
	errs = c.validateServer(errs)

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = errs.Append("timezone", fmt.Errorf("unknown timezone %q", c.Timezone))
	}

	return errs.ToError()
}

// Warnings returns non-fatal issues with the configuration.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Notifications.Driver == DriverNone {
		warnings = append(warnings, ValidationWarning{
			Category: "Notifications",
			Item:     "driver",
			Message:  "notifications are disabled; recipients will not be told about new messages",
		})
	}

	if c.Notifications.RedisURL != "" && c.Notifications.Driver != DriverAsynq {
		warnings = append(warnings, ValidationWarning{
			Category: "Notifications",
			Item:     "redis_url",
			Message:  fmt.Sprintf("redis_url is ignored by the %s driver", c.Notifications.Driver),
		})
	}

	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			warnings = append(warnings, ValidationWarning{
				Category: "Server",
				Item:     "allowed_origins",
				Message:  "any origin may call the HTTP API",
			})
			break
		}
	}

	if c.PollInterval > 5*time.Second {
		warnings = append(warnings, ValidationWarning{
			Category: "Subscriptions",
			Item:     "poll_interval",
			Message:  "writes from other processes may take a while to appear",
		})
	}

	return warnings
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				errs = errs.Append("config", fmt.Errorf("%s is a directory, not a file", configPath))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("config", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir == "" {
		return errs.Append("data_dir", fmt.Errorf("data directory cannot be empty"))
	}

	if info, err := os.Stat(c.DataDir); err == nil {
		if !info.IsDir() {
			errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
		}
	} else if !os.IsNotExist(err) {
		errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
	}

	return errs
}

func (c *Config) validateSubscriptions(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if c.PollInterval < 10*time.Millisecond {
		errs = errs.Append("poll_interval", fmt.Errorf("must be at least 10ms, got %s", c.PollInterval))
	}
	if c.SubscriptionBuffer < 1 {
		errs = errs.Append("subscription_buffer", fmt.Errorf("must be at least 1, got %d", c.SubscriptionBuffer))
	}
	return errs
}

func (c *Config) validateNotifications(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	n := c.Notifications

	if !isValidDriver(n.Driver) {
		errs = errs.Append("notifications.driver", fmt.Errorf(
			"invalid driver %q, use one of %s", n.Driver,
			strings.Join([]string{DriverOutbox, DriverAsynq, DriverLog, DriverNone}, ", "),
		))
	}

	if n.PreviewLength < 1 {
		errs = errs.Append("notifications.preview_length", fmt.Errorf("must be at least 1, got %d", n.PreviewLength))
	}

	if n.Driver == DriverAsynq {
		if n.RedisURL == "" {
			errs = errs.Append("notifications.redis_url", fmt.Errorf("required for the asynq driver"))
		} else if _, err := asynq.ParseRedisURI(n.RedisURL); err != nil {
			errs = errs.Append("notifications.redis_url", fmt.Errorf("invalid redis url: %w", err))
		}
		if n.Queue == "" {
			errs = errs.Append("notifications.queue", fmt.Errorf("required for the asynq driver"))
		}
	}

	return errs
}

func (c *Config) validateServer(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = errs.Append("server.addr", fmt.Errorf("invalid listen address %q: %w", c.Server.Addr, err))
	}

	for i, origin := range c.Server.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = errs.Append(fmt.Sprintf("server.allowed_origins[%d]", i), fmt.Errorf("origin is empty"))
		}
	}

	return errs
}
