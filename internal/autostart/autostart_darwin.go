package autostart

import (
	"os"
	"path/filepath"
)

// defaultDir は ~/Library/LaunchAgents を返す。
func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents"), nil
}

func (m *Manager) entryFileName() string {
	return m.label() + ".plist"
}

func (m *Manager) entryContent() []byte {
	return m.renderLaunchAgent()
}
