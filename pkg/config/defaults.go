package config

import (
	"os"
	"path/filepath"
)

// defaultStorePath returns the default bolt store path.
//
// Returns: ~/.config/session-keeper/origin.db.
func defaultStorePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./origin.db"
	}

	return filepath.Join(homeDir, ".config", "session-keeper", "origin.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/session-keeper/config.yaml.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "session-keeper", "config.yaml")
}
