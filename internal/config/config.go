// Package config loads the fleet daemon configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fleet holds all configuration for the fleet daemon.
type Fleet struct {
	// Control surface
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Event journal; empty disables persistence.
	JournalPath string `yaml:"journal_path"`

	// Login preamble overrides; empty entries keep the live defaults.
	ServerDirectoryURLs []string `yaml:"server_directory_urls"`
	ValidateURL         string   `yaml:"validate_url"`
	HTTPAttempts        int      `yaml:"http_attempts"`

	// Agents started at boot.
	Agents []AgentEntry `yaml:"agents"`
}

// AgentEntry describes one agent launched on startup.
type AgentEntry struct {
	Method   string `yaml:"method"` // legacy | refresh
	GrowID   string `yaml:"grow_id"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`

	SOCKS5 SOCKS5Entry `yaml:"socks5"`
}

// SOCKS5Entry is an optional per-agent UDP relay.
type SOCKS5Entry struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DefaultFleet returns Fleet config with sensible defaults.
func DefaultFleet() Fleet {
	return Fleet{
		BindAddress:  "127.0.0.1",
		Port:         8087,
		HTTPAttempts: 3,
	}
}

// LoadFleet loads fleet config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadFleet(path string) (Fleet, error) {
	cfg := DefaultFleet()

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

	return cfg, nil
}
