package model

import "time"

// ErrorKind はフェッチ失敗の分類。
type ErrorKind string

const (
	// ErrorKindNetwork は通信失敗またはタイムアウト。次のサイクルで暗黙的に再試行される。
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindAuth は認証情報が拒否された状態。設定を更新するまで回復しない。
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindParse はレスポンスが想定スキーマにデコードできない状態。
	ErrorKindParse ErrorKind = "parse"
)

// FetchOutcome は1回のフェッチ試行の結果。
// 成功時はSubscriptionsを持ち、失敗時はKindが空でない。
type FetchOutcome struct {
	Subscriptions []Subscription
	Kind          ErrorKind
	Err           error
	StatusCode    int
}

// Success は成功結果を生成する。
func Success(subs []Subscription) FetchOutcome {
	if subs == nil {
		subs = []Subscription{}
	}
	return FetchOutcome{Subscriptions: subs}
}

// Failure は失敗結果を生成する。
func Failure(kind ErrorKind, err error) FetchOutcome {
	return FetchOutcome{Kind: kind, Err: err}
}

// OK は成功結果かどうかを返す。
func (o FetchOutcome) OK() bool {
	return o.Kind == ""
}

// Snapshot はプレゼンテーション層へ公開する状態のコピー。
// 公開後に変更されることはない。
type Snapshot struct {
	Version          uint64         `json:"version"`
	Subscriptions    []Subscription `json:"subscriptions"`
	SelectedIndex    int            `json:"selected_index"`
	Selected         *Subscription  `json:"selected_subscription"`
	LastError        *ErrorKind     `json:"last_error"`
	LastErrorMessage string         `json:"last_error_message,omitempty"`
	InFlight         bool           `json:"in_flight"`
	Configured       bool           `json:"configured"`
	RefreshEnabled   bool           `json:"refresh_enabled"`
	IntervalSeconds  int64          `json:"refresh_interval_seconds"`
	LastAttemptAt    *time.Time     `json:"last_attempt_at"`
	LastSuccessAt    *time.Time     `json:"last_success_at"`
}
