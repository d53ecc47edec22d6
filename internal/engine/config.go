package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the engine's runtime settings.
//
// Fields:
//   - Relays: websocket URLs of the relays every publish and query fans out to.
//   - BlossomServers: media servers for large binary attachments.
//   - Enabled: whether background sync runs at all.
//   - DataDir: directory for the local state database and keystore.
type Config struct {
	Relays         []string `json:"relays"`
	BlossomServers []string `json:"blossomServers"`
	Enabled        bool     `json:"enabled"`
	DataDir        string   `json:"dataDir"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Relays = []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
		"wss://relay.primal.net",
	}
	c.BlossomServers = nil
	c.Enabled = true
	if dir, err := os.UserConfigDir(); err == nil {
		c.DataDir = filepath.Join(dir, "drift")
	} else {
		c.DataDir = ".drift"
	}
}

// LoadConfig constructs a Config: defaults first, then the JSON file at path
// overlaid on top (when path is non-empty). Absent JSON fields keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}
