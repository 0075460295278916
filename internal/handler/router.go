package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/quotaball/internal/metrics"
	"github.com/hitoshi/quotaball/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Scheduler   SchedulerInterface
	Settings    SettingsServiceInterface
	RateLimiter *middleware.RateLimiter
	// Gathererがnilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter は制御APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → LocalOrigin → RateLimit（変更系ルートのみ）
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLocalOriginMiddleware(deps.Logger))

	h := NewControlHandler(deps.Scheduler, deps.Settings, deps.Logger)

	r.Get("/health", h.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.GetSnapshot)

		// 変更系ルート
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}

			r.Post("/refresh", h.Refresh)
			r.Post("/subscriptions/next", h.NextSubscription)
			r.Post("/subscriptions/prev", h.PrevSubscription)

			r.Route("/settings", func(r chi.Router) {
				r.Put("/interval", h.UpdateInterval)
				r.Put("/credentials", h.UpdateCredentials)
			})
		})
	})

	return r
}
