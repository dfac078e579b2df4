package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// AppName is used for the XDG config directory.
	AppName = "cspcheck"

	// DefaultConfigFile is the per-project configuration file name.
	DefaultConfigFile = ".cspcheck.yaml"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadFromFile reads a YAML file and overlays it on DefaultConfig.
// Keys missing from the file keep their defaults; a pages list replaces the
// default pages entirely.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// UserConfigPath returns $XDG_CONFIG_HOME/cspcheck/config.yaml.
func UserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// FindConfigFile searches for a configuration file in the following order:
//  1. configPath, if specified
//  2. .cspcheck.yaml in the current directory
//  3. config.yaml in the user's XDG config directory
//
// Returns an empty string if none exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if p := UserConfigPath(); fileExists(p) {
		return p
	}

	return ""
}

// Load resolves the configuration for a run. An explicit path that does not
// exist is an error; a missing implicit file falls back to the defaults.
func Load(configPath string) (*Config, error) {
	path := FindConfigFile(configPath)
	if path == "" {
		if configPath != "" {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return DefaultConfig(), nil
	}
	return LoadFromFile(path)
}

// Validate checks the configuration for values that would make a run meaningless.
func (c *Config) Validate() error {
	if len(c.Pages) == 0 {
		return ErrNoPages
	}
	if c.NavTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ViolationMarker == "" {
		return ErrEmptyMarker
	}
	if c.OutputDir == "" {
		return ErrEmptyOutputDir
	}

	seen := make(map[string]string, len(c.Pages))
	for _, p := range c.Pages {
		if strings.TrimSpace(p.Path) == "" {
			return fmt.Errorf("%w: %q", ErrEmptyPagePath, p.Name)
		}
		if c.BaseURL == "" && !strings.Contains(p.Path, "://") {
			return fmt.Errorf("%w: %q", ErrEmptyBaseURL, p.Path)
		}
		shot := filepath.Clean(p.ScreenshotPath(c.OutputDir))
		if other, ok := seen[shot]; ok {
			return fmt.Errorf("%w: %s used by %q and %q", ErrDuplicateScreenshot, shot, other, p.Name)
		}
		seen[shot] = p.Name
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
