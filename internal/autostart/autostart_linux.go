package autostart

import (
	"os"
	"path/filepath"
)

// defaultDir は $XDG_CONFIG_HOME/autostart（未設定なら ~/.config/autostart）を返す。
func defaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autostart"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "autostart"), nil
}

func (m *Manager) entryFileName() string {
	return m.name + ".desktop"
}

func (m *Manager) entryContent() []byte {
	return m.renderDesktopEntry()
}
