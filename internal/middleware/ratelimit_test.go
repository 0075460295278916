package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newRateLimitTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// doRequest はremoteAddrからのPOSTリクエストを発行する。
func doRequest(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            2, // 2 req/sec
		Burst:           5, // バースト5
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg, newRateLimitTestLogger())
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := doRequest(handler, "127.0.0.1:50000")
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            1, // 1 req/sec
		Burst:           1, // バースト1
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg, newRateLimitTestLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	// 1回目は通る
	doRequest(handler, "127.0.0.1:50001")

	// 2回目は429になる（ポートが違っても同じホストとして扱う）
	w2 := doRequest(handler, "127.0.0.1:50002")

	if w2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w2.Result().StatusCode, http.StatusTooManyRequests)
	}

	retryAfter := w2.Result().Header.Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be present")
	}

	// Retry-Afterは数値（秒）であること
	retrySeconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		t.Errorf("Retry-After header should be a number, got %q", retryAfter)
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            1,
		Burst:           1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg, newRateLimitTestLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	doRequest(handler, "127.0.0.1:1000")
	if w := doRequest(handler, "127.0.0.1:1000"); w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("client A 2nd request: status = %d, want 429", w.Result().StatusCode)
	}

	// 別クライアントは影響を受けない
	if w := doRequest(handler, "[::1]:1000"); w.Result().StatusCode != http.StatusOK {
		t.Errorf("client B: status = %d, want 200", w.Result().StatusCode)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount() = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimitMiddleware_429ResponseIsJSON(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            1,
		Burst:           1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg, newRateLimitTestLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	// バースト消費
	doRequest(handler, "127.0.0.1:1")

	// 429レスポンス
	resp := doRequest(handler, "127.0.0.1:1").Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
	if body.Message == "" || body.Category == "" || body.Action == "" {
		t.Errorf("all fields should be set: %+v", body)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := RateLimiterConfig{
		Rate:            2,
		Burst:           5,
		CleanupInterval: 50 * time.Millisecond, // テスト用に短く
	}

	rl := NewRateLimiter(cfg, newRateLimitTestLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	// リクエストを発行してエントリを作成
	doRequest(handler, "127.0.0.1:2")

	// エントリが存在することを確認
	if rl.LimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// エントリのTTLはcleanupIntervalの2倍（100ms）なので、
	// 十分に待てば削除される
	deadline := time.Now().Add(2 * time.Second)
	for rl.LimiterCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count := rl.LimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), newRateLimitTestLogger())
	rl.Stop()
	rl.Stop()
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := PerMinuteRateLimiterConfig(30)
	if float64(cfg.Rate) != 0.5 {
		t.Errorf("Rate = %v, want 0.5", cfg.Rate)
	}
	if cfg.Burst != 30 {
		t.Errorf("Burst = %d, want 30", cfg.Burst)
	}

	if got := PerMinuteRateLimiterConfig(0); got != DefaultRateLimiterConfig() {
		t.Errorf("PerMinuteRateLimiterConfig(0) = %+v, want default", got)
	}
}
