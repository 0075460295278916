package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured は認証情報が未設定の場合のエラー。
	ErrNotConfigured = errors.New("credentials are not configured")
	// ErrSchedulerStopped は更新スケジューラが停止済みの場合のエラー。
	ErrSchedulerStopped = errors.New("refresh scheduler is stopped")
)

// DisplayError はユーザーに表示するエラーの統一フォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type DisplayError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, network, provider, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *DisplayError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRejected           = "AUTH_REJECTED"
	ErrCodeNetworkFailed          = "NETWORK_FAILED"
	ErrCodeParseFailed            = "PARSE_FAILED"
	ErrCodeNotConfigured          = "NOT_CONFIGURED"
	ErrCodeInvalidRefreshInterval = "INVALID_REFRESH_INTERVAL"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeSchedulerStopped       = "SCHEDULER_STOPPED"
	ErrCodeForbiddenOrigin        = "FORBIDDEN_ORIGIN"
)

// NewErrorForKind はフェッチ失敗の分類から表示用エラーを生成する。
func NewErrorForKind(kind ErrorKind) *DisplayError {
	switch kind {
	case ErrorKindAuth:
		return &DisplayError{
			Code:     ErrCodeAuthRejected,
			Message:  "認証情報が拒否されました。",
			Category: "auth",
			Action:   "設定画面でトークンとCookieを更新してください。",
		}
	case ErrorKindParse:
		return &DisplayError{
			Code:     ErrCodeParseFailed,
			Message:  "クォータ情報の解析に失敗しました。",
			Category: "provider",
			Action:   "次回の更新を待つか、APIのベースURLを確認してください。",
		}
	default:
		return &DisplayError{
			Code:     ErrCodeNetworkFailed,
			Message:  "クォータAPIへの接続に失敗しました。",
			Category: "network",
			Action:   "ネットワーク接続を確認してください。次回の更新で自動的に再試行します。",
		}
	}
}

// NewNotConfiguredError は認証情報が未設定の場合のエラーを生成する。
func NewNotConfiguredError() *DisplayError {
	return &DisplayError{
		Code:     ErrCodeNotConfigured,
		Message:  "認証情報が設定されていません。",
		Category: "auth",
		Action:   "設定画面でトークンとCookieを入力してください。",
	}
}

// NewInvalidRefreshIntervalError は更新間隔が無効な場合のエラーを生成する。
func NewInvalidRefreshIntervalError(seconds int64) *DisplayError {
	return &DisplayError{
		Code:     ErrCodeInvalidRefreshInterval,
		Message:  fmt.Sprintf("無効な更新間隔です: %d秒", seconds),
		Category: "validation",
		Action:   fmt.Sprintf("更新間隔は%d秒以上で指定してください。", int64(MinRefreshInterval.Seconds())),
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *DisplayError {
	return &DisplayError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewSchedulerStoppedError は更新スケジューラが停止している場合のエラーを生成する。
func NewSchedulerStoppedError() *DisplayError {
	return &DisplayError{
		Code:     ErrCodeSchedulerStopped,
		Message:  "更新スケジューラは停止しています。",
		Category: "system",
		Action:   "アプリケーションを再起動してください。",
	}
}

// NewForbiddenOriginError はループバック以外のオリジンから制御APIが呼ばれた場合のエラーを生成する。
func NewForbiddenOriginError() *DisplayError {
	return &DisplayError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "このオリジンからの操作は許可されていません。",
		Category: "validation",
		Action:   "ローカルのスクリプトから制御APIを呼び出してください。",
	}
}
