// Package xdg resolves XDG Base Directory paths for testd. It is used to find
// a default config file when none is given on the command line.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// configNames are tried in order inside ConfigDir.
var configNames = []string{"config.toml", "config.yaml", "config.yml"}

// ConfigDir returns the XDG config directory for testd without creating it.
// It falls back to ~/.config/testd when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "testd"), nil
}

// FindConfigFile returns the first config file present in ConfigDir, or ""
// when there is none.
func FindConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
	}
	return "", nil
}
