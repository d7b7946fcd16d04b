package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# econsim terminal configuration

[api]
# Base URL of the game service
base_url = "http://localhost:8000"

[polling]
orders_interval = "2s"
depth_interval = "2s"
stats_interval = "2s"
trades_interval = "3s"
# Window requested for candles, in minutes
candle_minutes = 60

[trading]
# Rate used when a build names none
extractor_rate_per_hour = 5
# Multipliers offered by the speed command
speed_presets = [0.25, 1.0, 5.0, 10.0, 60.0]

[security]
# Refuse every mutation locally
read_only_mode = false
# Append every mutation to the audit log
audit_enabled = true

[server]
# Status surface for watch, e.g. "127.0.0.1:9464". Empty disables it.
listen = ""

[logging]
# debug, info, warn, error
level = "info"
# Also write a rotating log file under the config directory
file = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
