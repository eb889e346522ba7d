package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "conversa"

// ResolvePath returns the explicit path, or config.jsonc under
// $XDG_CONFIG_HOME/conversa (default ~/.config/conversa).
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return ExpandHome(explicit), nil
	}
	return xdgFile("XDG_CONFIG_HOME", ".config", "config.jsonc")
}

// HistoryPath returns history.path, or history.db under
// $XDG_DATA_HOME/conversa (default ~/.local/share/conversa).
func (cfg Config) HistoryPath() (string, error) {
	if path := strings.TrimSpace(cfg.History.Path); path != "" {
		return ExpandHome(path), nil
	}
	return xdgFile("XDG_DATA_HOME", filepath.Join(".local", "share"), "history.db")
}

func xdgFile(env string, homeRel string, name string) (string, error) {
	if base := strings.TrimSpace(os.Getenv(env)); base != "" {
		return filepath.Join(base, appDir, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve %s: %s is unset and home is unknown: %w", name, env, err)
	}
	return filepath.Join(home, homeRel, appDir, name), nil
}

// ExpandHome resolves a leading "~" against the user home directory.
func ExpandHome(raw string) string {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "~")
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, rest)
}
