// Package model はドメインモデルを定義する。
package model

import "math"

// SubscriptionStatus はサブスクリプションのクォータ状態を表す。
type SubscriptionStatus string

const (
	// SubscriptionStatusActive は残りクォータがある状態。
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusExhausted はクォータを使い切った状態。
	SubscriptionStatusExhausted SubscriptionStatus = "exhausted"
	// SubscriptionStatusUnknown は状態を判定できない状態。
	SubscriptionStatusUnknown SubscriptionStatus = "unknown"
)

// Subscription はリモートAPIが返すクォータ管理対象の1エントリを表す。
// 値はプロバイダが返したまま保持し、表示用の補正は表示用メソッドでのみ行う。
type Subscription struct {
	ID             string             `json:"id"`
	DisplayName    string             `json:"display_name"`
	QuotaUsed      float64            `json:"quota_used"`
	QuotaTotal     float64            `json:"quota_total"`
	QuotaRemaining float64            `json:"quota_remaining"`
	Status         SubscriptionStatus `json:"status"`
}

// DisplayRemaining は表示用の残りクォータを返す。
// [0, QuotaTotal] に丸め、NaNや負の合計値の場合は0を返す。
func (s Subscription) DisplayRemaining() float64 {
	if !isFinite(s.QuotaTotal) || !isFinite(s.QuotaRemaining) || s.QuotaTotal <= 0 {
		return 0
	}
	return clamp(s.QuotaRemaining, 0, s.QuotaTotal)
}

// RemainingRatio は残りクォータの割合を[0, 1]で返す。
func (s Subscription) RemainingRatio() float64 {
	if !isFinite(s.QuotaTotal) || !isFinite(s.QuotaRemaining) || s.QuotaTotal <= 0 {
		return 0
	}
	return clamp(s.QuotaRemaining/s.QuotaTotal, 0, 1)
}

// DeriveStatus は残量と合計値からサブスクリプションの状態を判定する。
func DeriveStatus(total, remaining float64) SubscriptionStatus {
	switch {
	case !isFinite(total) || !isFinite(remaining):
		return SubscriptionStatusUnknown
	case remaining > 0:
		return SubscriptionStatusActive
	case total > 0:
		return SubscriptionStatusExhausted
	default:
		return SubscriptionStatusUnknown
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
