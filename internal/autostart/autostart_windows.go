package autostart

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

func defaultDir() (string, error) {
	return "", nil
}

func (m *Manager) enable() error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("レジストリキーのオープンに失敗: %w", err)
	}
	defer key.Close()

	if err := key.SetStringValue(m.name, m.commandLine()); err != nil {
		return fmt.Errorf("レジストリ値の書き込みに失敗: %w", err)
	}
	return nil
}

func (m *Manager) disable() error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("レジストリキーのオープンに失敗: %w", err)
	}
	defer key.Close()

	if err := key.DeleteValue(m.name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("レジストリ値の削除に失敗: %w", err)
	}
	return nil
}

func (m *Manager) enabled() (bool, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("レジストリキーのオープンに失敗: %w", err)
	}
	defer key.Close()

	_, _, err = key.GetStringValue(m.name)
	if errors.Is(err, registry.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("レジストリ値の読み込みに失敗: %w", err)
	}
	return true, nil
}
