// Package config loads the TOML configuration for one core instance:
// its local network identity, the interfaces it binds ConfigBus and
// PTP to, and the diagnostics HTTP surface.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level document loaded from a core instance's TOML
// file.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	ConfigBus ConfigBusConfig `toml:"configbus"`
	PTP       PTPConfig       `toml:"ptp"`
	Monitor   MonitorConfig   `toml:"monitor"`
}

// NodeConfig identifies this instance on the network.
type NodeConfig struct {
	Name string `toml:"name"`
	MAC  string `toml:"mac"`
	IP   string `toml:"ip"`
}

// ConfigBusConfig selects and parameterizes the ConfigBus backend.
type ConfigBusConfig struct {
	Backend    string `toml:"backend"` // "mmap" or "remote"
	RemoteAddr string `toml:"remote_addr"`
	TimeoutMs  int    `toml:"timeout_ms"`
}

// PTPConfig controls whether this instance runs a PTP client and in
// what role.
type PTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Role    string `toml:"role"` // "auto" (BMCA), "master", "slave"
	PeerIP  string `toml:"peer_ip"`
}

// MonitorConfig controls the diagnostics HTTP surface.
type MonitorConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// Load reads and validates a Config from path, applying defaults for
// any field the file leaves zero.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Node.Name == "" {
		cfg.Node.Name = "satcat5-core"
	}
	if cfg.ConfigBus.Backend == "" {
		cfg.ConfigBus.Backend = "mmap"
	}
	if cfg.ConfigBus.TimeoutMs == 0 {
		cfg.ConfigBus.TimeoutMs = 250
	}
	if cfg.PTP.Role == "" {
		cfg.PTP.Role = "auto"
	}
	if cfg.Monitor.Addr == "" {
		cfg.Monitor.Addr = ":9000"
	}
}

// Validate rejects configs that would fail to bind a meaningful
// identity or ConfigBus transport.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Node.MAC) == "" {
		return fmt.Errorf("node config missing mac")
	}
	if strings.TrimSpace(cfg.Node.IP) == "" {
		return fmt.Errorf("node config missing ip")
	}
	switch cfg.ConfigBus.Backend {
	case "mmap":
	case "remote":
		if strings.TrimSpace(cfg.ConfigBus.RemoteAddr) == "" {
			return fmt.Errorf("configbus backend=remote requires remote_addr")
		}
	default:
		return fmt.Errorf("unknown configbus backend %q", cfg.ConfigBus.Backend)
	}
	switch cfg.PTP.Role {
	case "auto", "master", "slave":
	default:
		return fmt.Errorf("unknown ptp role %q", cfg.PTP.Role)
	}
	if cfg.PTP.Enabled && strings.TrimSpace(cfg.PTP.PeerIP) == "" {
		return fmt.Errorf("ptp enabled requires peer_ip")
	}
	return nil
}
