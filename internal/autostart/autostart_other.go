//go:build !linux && !darwin && !windows

package autostart

func defaultDir() (string, error) {
	return "", ErrUnsupportedPlatform
}

func (m *Manager) enable() error {
	return ErrUnsupportedPlatform
}

func (m *Manager) disable() error {
	return ErrUnsupportedPlatform
}

func (m *Manager) enabled() (bool, error) {
	return false, ErrUnsupportedPlatform
}
