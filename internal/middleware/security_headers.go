package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/quotaball/internal/model"
)

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// スナップショットには認証状態が含まれるため、キャッシュも禁止する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// NewLocalOriginMiddleware はブラウザから送られた他オリジンの変更系リクエストを拒否するミドルウェアを返す。
// Originヘッダーが無いリクエスト（スクリプトやcurl）とループバックのオリジンは許可する。
func NewLocalOriginMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if isSafeMethod(r.Method) || origin == "" || isLoopbackOrigin(origin) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("他オリジンからの変更要求を拒否しました",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenOriginError())
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
