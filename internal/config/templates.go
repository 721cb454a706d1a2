package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a starter config file to path, refusing to
// overwrite an existing file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `[node]
name = "satcat5-core"
mac = "02:00:00:00:00:01"
ip = "10.0.0.1"

[configbus]
backend = "mmap"
timeout_ms = 250

[ptp]
enabled = true
role = "auto"
peer_ip = "10.0.0.2"

[monitor]
addr = ":9000"
cors_origins = ["http://localhost:3000"]
`
