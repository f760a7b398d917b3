package liker

import (
	"github.com/hazyhaar/feedpilot/liker/internal/config"
	"github.com/hazyhaar/feedpilot/liker/internal/journal"
	"github.com/hazyhaar/feedpilot/liker/internal/store"
)

// Config is the top-level feedpilot configuration. Re-exported from internal.
type Config = config.Config

// Schema creates the settings, stats and journal tables; apply it when
// opening the database.
const Schema = store.Schema + journal.Schema

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig is the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}
