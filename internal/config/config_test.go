package config

import (
	"os"
	"path/filepath"
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.toml")
	body := `
[node]
mac = "02:00:00:00:00:01"
ip = "10.0.0.1"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.Name != "satcat5-core" {
		t.Errorf("Node.Name default = %q, want satcat5-core", cfg.Node.Name)
	}
	if cfg.ConfigBus.Backend != "mmap" {
		t.Errorf("ConfigBus.Backend default = %q, want mmap", cfg.ConfigBus.Backend)
	}
	if cfg.PTP.Role != "auto" {
		t.Errorf("PTP.Role default = %q, want auto", cfg.PTP.Role)
	}
	if cfg.Monitor.Addr != ":9000" {
		t.Errorf("Monitor.Addr default = %q, want :9000", cfg.Monitor.Addr)
	}
}

func TestValidateRejectsMissingIdentity(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for missing node identity")
	}
}

func TestValidateRejectsRemoteWithoutAddr(t *testing.T) {
	cfg := Config{
		Node:      NodeConfig{MAC: "02:00:00:00:00:01", IP: "10.0.0.1"},
		ConfigBus: ConfigBusConfig{Backend: "remote"},
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for remote backend without remote_addr")
	}
}
