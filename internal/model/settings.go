package model

import (
	"math"
	"time"
)

const (
	// MinBallSize はボールの最小サイズ。
	MinBallSize = 80.0
	// MaxBallSize はボールの最大サイズ。
	MaxBallSize = 220.0
	// DefaultBallSize はボールのデフォルトサイズ。
	DefaultBallSize = 120.0
	// minResizeDelta はこれ未満のサイズ変更を無視する閾値。
	minResizeDelta = 0.5
)

// WindowGeometry は前回終了時のボールの位置とサイズ。
type WindowGeometry struct {
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
	Size float64 `yaml:"size" json:"size"`
}

// Settings は設定ファイルに永続化されるフラットな設定レコード。
type Settings struct {
	APIBase                string         `yaml:"api_base"`
	AuthToken              string         `yaml:"auth_token"`
	Cookie                 string         `yaml:"cookie"`
	UserAgent              string         `yaml:"user_agent"`
	RefreshIntervalSeconds int64          `yaml:"refresh_interval_seconds"`
	RefreshEnabled         bool           `yaml:"refresh_enabled"`
	PreferredSubscription  string         `yaml:"preferred_subscription"`
	Window                 WindowGeometry `yaml:"window"`
	AutostartEnabled       bool           `yaml:"autostart_enabled"`
}

// DefaultSettings は設定ファイルが存在しない場合の初期値を返す。
func DefaultSettings(apiBase string) Settings {
	return Settings{
		APIBase:                apiBase,
		UserAgent:              DefaultUserAgent,
		RefreshIntervalSeconds: int64(DefaultRefreshInterval.Seconds()),
		RefreshEnabled:         true,
		Window:                 WindowGeometry{Size: DefaultBallSize},
	}
}

// Credentials は設定から認証情報を取り出す。
func (s Settings) Credentials() Credentials {
	return Credentials{
		AuthToken: s.AuthToken,
		Cookie:    s.Cookie,
		UserAgent: s.UserAgent,
	}
}

// RefreshConfig は設定から自動更新設定を取り出す。
func (s Settings) RefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval: time.Duration(s.RefreshIntervalSeconds) * time.Second,
		Enabled:  s.RefreshEnabled,
	}
}

// ClampBallSize はボールのサイズを許容範囲に収める。
func ClampBallSize(size float64) float64 {
	if math.IsNaN(size) || size <= 0 {
		return DefaultBallSize
	}
	return clamp(size, MinBallSize, MaxBallSize)
}

// ResizeBall はコーナーのドラッグ量からボールの新しいサイズを求める。
// 変化量が閾値未満の場合は元のサイズとfalseを返す。
func ResizeBall(current, dx, dy float64) (float64, bool) {
	next := ClampBallSize(current + (dx+dy)/2)
	if math.Abs(next-current) < minResizeDelta {
		return current, false
	}
	return next, true
}
