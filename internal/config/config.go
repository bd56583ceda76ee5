// Package config loads node configuration from the environment, following
// the existing LoadConfigFromEnv() convention used elsewhere in this
// codebase's entrypoints.
package config

import (
	"os"
	"path/filepath"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// Config is one node process's full runtime configuration.
type Config struct {
	KeystoreHome   string // FROST_KEYSTORE_HOME, default $HOME/.frost_keystore
	DeviceID       string // FROST_DEVICE_ID, generated and persisted on first init if absent
	RendezvousURL  string // FROST_RENDEZVOUS_URL, e.g. ws://localhost:9443/ws
	LogLevel       string // FROST_LOG_LEVEL: debug|info|warn|error
	DatabaseURL    string // FROST_DATABASE_URL, optional Postgres mirror target
	StorePassword  string // FROST_STORE_PASSWORD, keystore encryption password
}

const defaultRendezvousURL = "ws://localhost:9443/ws"

// LoadConfigFromEnv reads every FROST_* environment variable, applying
// defaults where unset. DeviceID is intentionally allowed to be empty
// here — cmd/frostnode's init command is responsible for generating and
// persisting one the first time a keystore home is created.
func LoadConfigFromEnv() (*Config, error) {
	home := os.Getenv("FROST_KEYSTORE_HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, errs.Wrap(errs.Config, "config.LoadConfigFromEnv", err)
		}
		home = filepath.Join(dir, ".frost_keystore")
	}

	level := os.Getenv("FROST_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	rendezvousURL := os.Getenv("FROST_RENDEZVOUS_URL")
	if rendezvousURL == "" {
		rendezvousURL = defaultRendezvousURL
	}

	return &Config{
		KeystoreHome:  home,
		DeviceID:      os.Getenv("FROST_DEVICE_ID"),
		RendezvousURL: rendezvousURL,
		LogLevel:      level,
		DatabaseURL:   os.Getenv("FROST_DATABASE_URL"),
		StorePassword: os.Getenv("FROST_STORE_PASSWORD"),
	}, nil
}

// DeviceIDFile is the identity file path inside a keystore home, holding the
// bare device-id string written by `init`.
func DeviceIDFile(keystoreHome string) string {
	return filepath.Join(keystoreHome, "device_id")
}
