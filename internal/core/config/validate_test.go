package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	return &cfg
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep("")
	assert.NoError(t, err, "expected valid config")
}

func TestValidateDeep_InvalidDriver(t *testing.T) {
	cfg := validConfig(t)
	cfg.Notifications.Driver = "carrier-pigeon"

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 1)
	assert.Equal(t, "notifications.driver", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "invalid driver")
}

func TestValidateDeep_AsynqRequiresRedis(t *testing.T) {
	cfg := validConfig(t)
	cfg.Notifications.Driver = DriverAsynq

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 1)
	assert.Equal(t, "notifications.redis_url", fieldErrs[0].Field)
}

func TestValidateDeep_AsynqInvalidRedisURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.Notifications.Driver = DriverAsynq
	cfg.Notifications.RedisURL = "http://not-redis"

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 1)
	assert.Contains(t, fieldErrs[0].Err.Error(), "invalid redis url")
}

func TestValidateDeep_AsynqValid(t *testing.T) {
	cfg := validConfig(t)
	cfg.Notifications.Driver = DriverAsynq
	cfg.Notifications.RedisURL = "redis://localhost:6379/0"

	assert.NoError(t, cfg.ValidateDeep(""))
}

func TestValidateDeep_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.PollInterval = time.Millisecond
	cfg.SubscriptionBuffer = 0
	cfg.Notifications.PreviewLength = -1
	cfg.Server.Addr = "no-port"
	cfg.Timezone = "Mars/Olympus_Mons"

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{
		"poll_interval",
		"subscription_buffer",
		"notifications.preview_length",
		"server.addr",
		"timezone",
	}, fields)
}

func TestValidateDeep_EmptyOrigin(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.AllowedOrigins = []string{"http://localhost", " "}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "server.allowed_origins[1]", fieldErrs[0].Field)
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.DataDir = file

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "data_dir", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "not a directory")
}

func TestValidateDeep_ConfigPathIsDir(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep(t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "config", fieldErrs[0].Field)
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Config)
		want  []string
	}{
		{
			name:  "clean",
			setup: func(*Config) {},
		},
		{
			name:  "notifications disabled",
			setup: func(c *Config) { c.Notifications.Driver = DriverNone },
			want:  []string{"driver"},
		},
		{
			name: "redis url unused",
			setup: func(c *Config) {
				c.Notifications.RedisURL = "redis://localhost:6379"
			},
			want: []string{"redis_url"},
		},
		{
			name:  "wildcard origin",
			setup: func(c *Config) { c.Server.AllowedOrigins = []string{"*", "*"} },
			want:  []string{"allowed_origins"},
		},
		{
			name:  "slow poll",
			setup: func(c *Config) { c.PollInterval = time.Minute },
			want:  []string{"poll_interval"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.setup(cfg)

			var items []string
			for _, w := range cfg.Warnings() {
				items = append(items, w.Item)
			}
			assert.Equal(t, tt.want, items)
		})
	}
}
