package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/notify"
	"github.com/hay-kot/parley/internal/parley"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	As         string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Stores backing the service. Doctor inspects them directly.
	Messages messaging.Store
	Rooms    room.Store

	// Dispatcher is the notification driver selected by the config.
	Dispatcher notify.Dispatcher

	// Service is the parley service for orchestrating operations
	Service *parley.Service
}

// Identity returns the participant the CLI acts as.
func (f *Flags) Identity() (convo.ParticipantID, error) {
	if f.As == "" {
		return "", fmt.Errorf("%w: set --as or PARLEY_USER", convo.ErrInvalidIdentity)
	}
	id := convo.ParticipantID(f.As)
	if err := convo.ValidateParticipant(id); err != nil {
		return "", err
	}
	return id, nil
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "parley", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "parley")
}
