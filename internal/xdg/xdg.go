// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg locates the accounts configuration under the XDG Base
// Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName    = "accounts"
	configName = "config.yaml"
)

// ConfigDir returns the XDG config directory for accounts.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").With("operation", "resolve home directory").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of config.yaml in ConfigDir, or ""
// when no such file exists.
func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, configName)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", oops.Code("XDG_STAT_FAILED").With("path", path).Wrap(err)
	}
	if info.IsDir() {
		return "", oops.Code("XDG_STAT_FAILED").With("path", path).Errorf("%s is a directory", path)
	}
	return path, nil
}
