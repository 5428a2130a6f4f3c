package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/asaidimu/go-quire/config"
)

// Defaults are the paths used when no flags override them.
type Defaults struct {
	ConfigPath string
	DataDir    string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - QUIRE_HOME: data directory (default: ~/.local/share/quire)
//   - QUIRE_CONFIG_PATH: config file location (default: $QUIRE_HOME/quire.toml)
func GetDefaults() (Defaults, error) {
	dataDir := os.Getenv("QUIRE_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Defaults{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share", "quire")
	}

	configPath := os.Getenv("QUIRE_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(dataDir, config.FileName)
	}
	return Defaults{ConfigPath: configPath, DataDir: dataDir}, nil
}
