package model

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// MinRefreshInterval はリモートAPIへの過剰なリクエストを防ぐ更新間隔の下限。
	MinRefreshInterval = 5 * time.Second
	// DefaultRefreshInterval はデフォルトの更新間隔。
	DefaultRefreshInterval = 60 * time.Second

	// DefaultUserAgent はUser-Agent未設定時に送信する値。
	// cf_clearance Cookieは取得したブラウザのUser-Agentと一致している必要がある。
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:146.0) Gecko/20100101 Firefox/146.0"
)

// ErrIntervalTooShort は更新間隔が下限を下回る場合のエラー。
var ErrIntervalTooShort = errors.New("refresh interval is below the minimum")

// Credentials はリモートAPIに送信する認証情報。
// コアはリクエストへそのまま渡すだけで、内容を解釈しない。
type Credentials struct {
	AuthToken string
	Cookie    string
	UserAgent string
}

// Configured はトークンとCookieの両方が設定されているかを返す。
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.AuthToken) != "" && strings.TrimSpace(c.Cookie) != ""
}

// LogValue はslog.LogValuerを実装する。
// 秘密情報はログに出さず、設定の有無のみを出力する。
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("auth_token_set", strings.TrimSpace(c.AuthToken) != ""),
		slog.Bool("cookie_set", strings.TrimSpace(c.Cookie) != ""),
		slog.String("user_agent", c.UserAgent),
	)
}

// String はfmt経由で秘密情報が漏れないようにマスクした表現を返す。
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{auth_token_set:%t cookie_set:%t}",
		strings.TrimSpace(c.AuthToken) != "", strings.TrimSpace(c.Cookie) != "")
}

// RefreshConfig は自動更新の設定。
type RefreshConfig struct {
	Interval time.Duration
	Enabled  bool
}

// DefaultRefreshConfig はデフォルトの自動更新設定を返す。
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{Interval: DefaultRefreshInterval, Enabled: true}
}

// Normalized は更新間隔を下限以上に補正した設定を返す。
func (r RefreshConfig) Normalized() RefreshConfig {
	if r.Interval < MinRefreshInterval {
		r.Interval = MinRefreshInterval
	}
	return r
}

// ValidateRefreshInterval は更新間隔が下限以上かを検証する。
func ValidateRefreshInterval(d time.Duration) error {
	if d < MinRefreshInterval {
		return fmt.Errorf("%w: %s < %s", ErrIntervalTooShort, d, MinRefreshInterval)
	}
	return nil
}
