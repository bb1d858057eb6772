// Package config loads the server configuration from YAML, falling back to
// defaults when no file is present. The listening port is deliberately not
// configurable here: it comes from the mandatory -p command-line option.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the match server.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`

	// Capacity
	MaxClients int `yaml:"max_clients"`

	// Logging: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file overrides it.
func Default() Server {
	return Server{
		BindAddress: "0.0.0.0",
		MaxClients:  64,
		LogLevel:    "info",
	}
}

// Load reads server config from a YAML file. A missing file is not an
// error; defaults apply.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.MaxClients <= 0 {
		return cfg, fmt.Errorf("config %s: max_clients must be positive, got %d", path, cfg.MaxClients)
	}
	return cfg, nil
}
