package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/quotaball/internal/middleware"
	"github.com/hitoshi/quotaball/internal/model"
)

// SchedulerInterface は制御APIが必要とする更新スケジューラの操作。
type SchedulerInterface interface {
	// Snapshot は最新のスナップショットを返す。
	Snapshot() model.Snapshot
	// RequestRefresh は手動更新を要求し、フェッチを開始したかを返す。
	RequestRefresh(ctx context.Context) (bool, error)
	// SwitchNext は次のサブスクリプションを選択する。
	SwitchNext(ctx context.Context) error
	// SwitchPrev は前のサブスクリプションを選択する。
	SwitchPrev(ctx context.Context) error
}

// SettingsServiceInterface は制御APIから設定を変更するためのサービスインターフェース。
// 変更は設定ファイルに保存されてからスケジューラに反映される。
type SettingsServiceInterface interface {
	// UpdateInterval は更新間隔を変更する。
	UpdateInterval(ctx context.Context, interval time.Duration) error
	// UpdateCredentials は認証情報を変更する。
	UpdateCredentials(ctx context.Context, creds model.Credentials) error
}

// ControlHandler はローカル制御APIのHTTPハンドラー。
type ControlHandler struct {
	scheduler SchedulerInterface
	settings  SettingsServiceInterface
	logger    *slog.Logger
}

// NewControlHandler はControlHandlerを生成する。
func NewControlHandler(scheduler SchedulerInterface, settings SettingsServiceInterface, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		scheduler: scheduler,
		settings:  settings,
		logger:    logger,
	}
}

// refreshResponse は手動更新要求のレスポンス。
type refreshResponse struct {
	Accepted bool `json:"accepted"`
	// Started はフェッチを開始した場合にtrue。フェッチ中で統合された場合はfalse。
	Started bool `json:"started"`
}

// intervalRequest は更新間隔変更リクエストのボディ。
type intervalRequest struct {
	Seconds int64 `json:"seconds"`
}

// credentialsRequest は認証情報変更リクエストのボディ。
type credentialsRequest struct {
	AuthToken string `json:"auth_token"`
	Cookie    string `json:"cookie"`
	UserAgent string `json:"user_agent"`
}

// Health はヘルスチェックに応答する。
// GET /health
func (h *ControlHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSnapshot は最新のスナップショットを返す。
// GET /api/snapshot
func (h *ControlHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.scheduler.Snapshot())
}

// Refresh は手動更新を要求する。
// POST /api/refresh
func (h *ControlHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.Snapshot().Configured {
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewNotConfiguredError())
		return
	}

	started, err := h.scheduler.RequestRefresh(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, refreshResponse{Accepted: true, Started: started})
}

// NextSubscription は次のサブスクリプションを選択する。
// POST /api/subscriptions/next
func (h *ControlHandler) NextSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.SwitchNext(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, h.scheduler.Snapshot())
}

// PrevSubscription は前のサブスクリプションを選択する。
// POST /api/subscriptions/prev
func (h *ControlHandler) PrevSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.SwitchPrev(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, h.scheduler.Snapshot())
}

// UpdateInterval は更新間隔を変更する。次のティックから反映される。
// PUT /api/settings/interval
func (h *ControlHandler) UpdateInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}

	interval := time.Duration(req.Seconds) * time.Second
	if err := model.ValidateRefreshInterval(interval); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRefreshIntervalError(req.Seconds))
		return
	}

	if err := h.settings.UpdateInterval(r.Context(), interval); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateCredentials は認証情報を変更する。
// PUT /api/settings/credentials
func (h *ControlHandler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}

	creds := model.Credentials{
		AuthToken: req.AuthToken,
		Cookie:    req.Cookie,
		UserAgent: req.UserAgent,
	}
	if err := h.settings.UpdateCredentials(r.Context(), creds); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (h *ControlHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if status, displayErr, ok := middleware.StatusForError(err); ok {
		middleware.WriteErrorResponse(w, status, displayErr)
		return
	}

	// それ以外のエラーは内部サーバーエラーとして扱う
	h.logger.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// maxRequestBodySize は制御APIが受け付けるリクエストボディの上限。
const maxRequestBodySize = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
