package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/quotaball/internal/model"
)

// ErrorResponseBody は制御APIのエラーレスポンスの統一フォーマット。
// UIのエラー表示と同じ原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON はvをJSONとして書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ロギングミドルウェアがリクエストIDを付与済みであればボディにも含める。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, displayErr *model.DisplayError) {
	WriteJSON(w, statusCode, ErrorResponseBody{
		Code:      displayErr.Code,
		Message:   displayErr.Message,
		Category:  displayErr.Category,
		Action:    displayErr.Action,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、レスポンスには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.DisplayError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "ログファイルを確認してください。",
	})
}

// StatusForError はサービス層のエラーをHTTPステータスと表示用エラーに変換する。
// 既知のエラーでない場合はokにfalseを返す。
func StatusForError(err error) (status int, displayErr *model.DisplayError, ok bool) {
	switch {
	case errors.Is(err, model.ErrNotConfigured):
		return http.StatusConflict, model.NewNotConfiguredError(), true
	case errors.Is(err, model.ErrIntervalTooShort):
		return http.StatusBadRequest, model.NewInvalidRefreshIntervalError(0), true
	case errors.Is(err, model.ErrSchedulerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, model.NewSchedulerStoppedError(), true
	}

	if errors.As(err, &displayErr) {
		return http.StatusBadRequest, displayErr, true
	}
	return 0, nil, false
}
