package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loaded is the outcome of Load. Exists is false when defaults were used
// because no file was found.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Without an explicit path the first of these found in the config dir wins.
var configNames = []string{"config.jsonc", "config.yaml", "config.yml"}

// Load reads, parses and validates the configuration. A missing file is not
// an error: defaults are returned with a warning.
func Load(explicitPath string) (Loaded, error) {
	path, err := locate(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}}
		return loaded, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	loaded.Config, loaded.Warnings, err = Parse(string(content), loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	loaded.Exists = true
	return loaded, nil
}

func locate(explicitPath string) (string, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil || strings.TrimSpace(explicitPath) != "" {
		return path, err
	}

	dir := filepath.Dir(path)
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return path, nil
}
