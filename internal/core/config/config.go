// Package config handles configuration loading and validation for parley.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Notification driver names.
const (
	DriverOutbox = "outbox"
	DriverAsynq  = "asynq"
	DriverLog    = "log"
	DriverNone   = "none"
)

// Config holds the application configuration.
type Config struct {
	// Timezone is the IANA zone used to split the conversation view into
	// days. Empty means the local zone.
	Timezone           string        `yaml:"timezone"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	SubscriptionBuffer int           `yaml:"subscription_buffer"`
	Notifications      Notifications `yaml:"notifications"`
	Server             ServerConfig  `yaml:"server"`
	DataDir            string        `yaml:"-"` // set by caller, not from config file
}

// Notifications configures how new-message events reach the push collaborator.
type Notifications struct {
	Driver        string `yaml:"driver"`
	PreviewLength int    `yaml:"preview_length"`
	RedisURL      string `yaml:"redis_url"`
	Queue         string `yaml:"queue"`
}

// ServerConfig holds settings for `parley serve`.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       500 * time.Millisecond,
		SubscriptionBuffer: 64,
		Notifications: Notifications{
			Driver:        DriverOutbox,
			PreviewLength: 80,
			Queue:         "notifications",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.SubscriptionBuffer == 0 {
		c.SubscriptionBuffer = defaults.SubscriptionBuffer
	}
	if c.Notifications.Driver == "" {
		c.Notifications.Driver = defaults.Notifications.Driver
	}
	if c.Notifications.PreviewLength == 0 {
		c.Notifications.PreviewLength = defaults.Notifications.PreviewLength
	}
	if c.Notifications.Queue == "" {
		c.Notifications.Queue = defaults.Notifications.Queue
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("poll_interval must be at least 10ms")
	}

	if c.SubscriptionBuffer < 1 {
		return fmt.Errorf("subscription_buffer must be at least 1")
	}

	if !isValidDriver(c.Notifications.Driver) {
		return fmt.Errorf("notifications.driver has invalid value %q", c.Notifications.Driver)
	}

	if c.Notifications.Driver == DriverAsynq && c.Notifications.RedisURL == "" {
		return fmt.Errorf("notifications.redis_url is required for the asynq driver")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// Location returns the zone used for date boundaries.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ConversationsDir returns the path where message logs are stored.
func (c *Config) ConversationsDir() string {
	return filepath.Join(c.DataDir, "conversations")
}

// RoomsDir returns the path where room summaries are stored.
func (c *Config) RoomsDir() string {
	return filepath.Join(c.DataDir, "rooms")
}

// OutboxDir returns the path of the notification outbox.
func (c *Config) OutboxDir() string {
	return filepath.Join(c.DataDir, "outbox")
}

func isValidDriver(driver string) bool {
	switch driver {
	case DriverOutbox, DriverAsynq, DriverLog, DriverNone:
		return true
	default:
		return false
	}
}
