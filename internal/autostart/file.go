//go:build linux || darwin

package autostart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

func (m *Manager) enable() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("自動起動ディレクトリの作成に失敗: %w", err)
	}
	if err := os.WriteFile(m.entryPath(), m.entryContent(), 0o644); err != nil {
		return fmt.Errorf("自動起動ファイルの書き込みに失敗: %w", err)
	}
	return nil
}

func (m *Manager) disable() error {
	err := os.Remove(m.entryPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("自動起動ファイルの削除に失敗: %w", err)
	}
	return nil
}

func (m *Manager) enabled() (bool, error) {
	_, err := os.Stat(m.entryPath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("自動起動ファイルの確認に失敗: %w", err)
	}
	return true, nil
}

func (m *Manager) entryPath() string {
	return filepath.Join(m.dir, m.entryFileName())
}
