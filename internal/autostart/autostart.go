// Package autostart はログイン時の自動起動登録を提供する。
//
// LinuxはXDGの.desktopファイル、macOSはLaunchAgentのplist、
// Windowsはレジストリの Run キーに登録する。それ以外のOSではErrUnsupportedPlatformを返す。
package autostart

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnsupportedPlatform は自動起動に対応していないOSの場合のエラー。
var ErrUnsupportedPlatform = errors.New("autostart is not supported on this platform")

// Manager は自動起動登録を管理する。
type Manager struct {
	name     string
	execPath string
	args     []string
	// dir は登録ファイルを置くディレクトリ。Windowsでは使用しない。
	dir    string
	logger *slog.Logger
}

// Option はManagerの設定を変更する関数。
type Option func(*Manager)

// WithDir は登録ファイルを置くディレクトリを指定する。
func WithDir(dir string) Option {
	return func(m *Manager) {
		m.dir = dir
	}
}

// WithArgs は起動時に渡す引数を指定する。
func WithArgs(args ...string) Option {
	return func(m *Manager) {
		m.args = args
	}
}

// New はManagerを生成する。nameは登録名、execPathは起動する実行ファイルのパス。
func New(name, execPath string, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("登録名が空です")
	}
	if strings.TrimSpace(execPath) == "" {
		return nil, errors.New("実行ファイルのパスが空です")
	}

	m := &Manager{
		name:     name,
		execPath: execPath,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.dir == "" {
		dir, err := defaultDir()
		if err != nil && !errors.Is(err, ErrUnsupportedPlatform) {
			return nil, fmt.Errorf("自動起動ディレクトリの取得に失敗: %w", err)
		}
		m.dir = dir
	}
	return m, nil
}

// Enable は自動起動を登録する。登録済みの場合は内容を上書きする。
func (m *Manager) Enable() error {
	if err := m.enable(); err != nil {
		return err
	}
	m.logger.Info("自動起動を登録しました", slog.String("name", m.name))
	return nil
}

// Disable は自動起動の登録を解除する。未登録の場合は何もしない。
func (m *Manager) Disable() error {
	if err := m.disable(); err != nil {
		return err
	}
	m.logger.Info("自動起動の登録を解除しました", slog.String("name", m.name))
	return nil
}

// Enabled は自動起動が登録されているかを返す。
func (m *Manager) Enabled() (bool, error) {
	return m.enabled()
}

// commandLine は実行ファイルと引数を1行のコマンドにする。空白を含む要素は二重引用符で囲む。
func (m *Manager) commandLine() string {
	parts := make([]string, 0, len(m.args)+1)
	for _, p := range append([]string{m.execPath}, m.args...) {
		if strings.ContainsAny(p, " \t\"") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// renderDesktopEntry はXDG自動起動用の.desktopファイルの内容を返す。
func (m *Manager) renderDesktopEntry() []byte {
	var b bytes.Buffer
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", m.name)
	fmt.Fprintf(&b, "Exec=%s\n", m.commandLine())
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.Bytes()
}

// renderLaunchAgent はmacOSのLaunchAgent用plistの内容を返す。
func (m *Manager) renderLaunchAgent() []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	b.WriteString(`<plist version="1.0">` + "\n<dict>\n")
	b.WriteString("\t<key>Label</key>\n")
	fmt.Fprintf(&b, "\t<string>%s</string>\n", escapeXML(m.label()))
	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	for _, p := range append([]string{m.execPath}, m.args...) {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", escapeXML(p))
	}
	b.WriteString("\t</array>\n")
	b.WriteString("\t<key>RunAtLoad</key>\n\t<true/>\n")
	b.WriteString("</dict>\n</plist>\n")
	return b.Bytes()
}

// label はLaunchAgentのラベル。
func (m *Manager) label() string {
	return "com." + strings.ToLower(strings.ReplaceAll(m.name, " ", "-"))
}

func escapeXML(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
