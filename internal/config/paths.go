// Package config provides configuration management for vzkit.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for vzkit.
type Paths struct {
	// ConfigDir is the directory searched for config.yaml after DataDir.
	// macOS: ~/Library/Application Support/vzkit
	// Linux: ~/.config/vzkit (or XDG_CONFIG_HOME)
	ConfigDir string

	// DataDir holds the boot state file and the primary config file.
	// All platforms: ~/.vzkit
	DataDir string

	// ConfigFile is the path to the main config file.
	ConfigFile string
}

// GetPaths returns platform-aware paths for vzkit.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{DataDir: filepath.Join(home, ".vzkit")}

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "vzkit")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "vzkit")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "vzkit")
		}
	}

	p.ConfigFile = filepath.Join(p.DataDir, "config.yaml")
	return p, nil
}

// EnsureDirectories creates the config and data directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(p.DataDir, 0755)
}
