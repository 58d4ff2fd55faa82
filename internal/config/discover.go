package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath overrides config discovery.
const EnvConfigPath = "LOOKOUT_CONFIG"

// Discover finds the config file: explicit path, $LOOKOUT_CONFIG,
// ~/.config/lookout/config.yaml, then ./lookout.yaml.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(homeDir, ".config", "lookout", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if _, err := os.Stat("lookout.yaml"); err == nil {
		return "lookout.yaml", nil
	}
	return "", fmt.Errorf("no config found (checked: --config, $%s, ~/.config/lookout/config.yaml, ./lookout.yaml)", EnvConfigPath)
}
