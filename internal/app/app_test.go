package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/quotaball/internal/config"
	"github.com/hitoshi/quotaball/internal/model"
)

func writeSettings(t *testing.T, yamlData string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
	}
	t.Setenv("QUOTABALL_CONFIG_PATH", path)
	return path
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	t.Setenv("QUOTABALL_CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("QUOTABALL_LOG_LEVEL", "debug")

	var buf bytes.Buffer
	cfg, log, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil || log == nil {
		t.Fatal("expected non-nil config and logger")
	}

	// Verify that slog global logger is configured for JSON output at debug level
	slog.Default().Debug("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithInvalidConfig_ReturnsError(t *testing.T) {
	t.Setenv("QUOTABALL_CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("QUOTABALL_FETCH_TIMEOUT", "-5s")

	var buf bytes.Buffer
	cfg, _, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for invalid fetch timeout, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRun_ConfigCommand_PrintsSettingsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv("QUOTABALL_CONFIG_PATH", path)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"config"}); err != nil {
		t.Fatalf("Run(config) がエラーを返した: %v", err)
	}
	if strings.TrimSpace(buf.String()) != path {
		t.Errorf("output = %q, want %q", buf.String(), path)
	}
}

func TestRun_FetchCommand_PrintsSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"subscriptions":[{"id":"pro","name":"Pro","total_quota":100,"remaining_quota":40}]}`)
	}))
	defer server.Close()

	writeSettings(t, fmt.Sprintf("api_base: %q\nauth_token: tok\ncookie: clear\n", server.URL))

	var buf bytes.Buffer
	if err := Run(&buf, []string{"fetch"}); err != nil {
		t.Fatalf("Run(fetch) がエラーを返した: %v", err)
	}

	var report fetchReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("出力がJSONではない: %v\nraw: %s", err, buf.String())
	}
	if !report.OK {
		t.Errorf("ok = false: %+v", report)
	}
	if len(report.Subscriptions) != 1 || report.Subscriptions[0].ID != "pro" {
		t.Errorf("subscriptions = %+v", report.Subscriptions)
	}
	if report.Subscriptions[0].QuotaUsed != 60 {
		t.Errorf("quota_used = %v, want 60", report.Subscriptions[0].QuotaUsed)
	}
}

func TestRun_FetchCommand_AuthErrorIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	writeSettings(t, fmt.Sprintf("api_base: %q\nauth_token: tok\ncookie: clear\n", server.URL))

	var buf bytes.Buffer
	err := Run(&buf, []string{"fetch"})
	if err == nil {
		t.Fatal("認証エラーでエラーが返されるべき")
	}

	var report fetchReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("出力がJSONではない: %v\nraw: %s", err, buf.String())
	}
	if report.ErrorKind != model.ErrorKindAuth {
		t.Errorf("error_kind = %q, want auth", report.ErrorKind)
	}
	if report.StatusCode != http.StatusForbidden {
		t.Errorf("status_code = %d, want 403", report.StatusCode)
	}
}

func TestRun_FetchCommand_NotConfigured(t *testing.T) {
	writeSettings(t, "auth_token: tok\n")

	var buf bytes.Buffer
	err := Run(&buf, []string{"fetch"})
	if !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestRun_HealthcheckCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Setenv("QUOTABALL_CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("QUOTABALL_CONTROL_ADDR", strings.TrimPrefix(server.URL, "http://"))

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err != nil {
		t.Errorf("Run(healthcheck) がエラーを返した: %v", err)
	}
}

func TestRunHealthcheck_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if err := runHealthcheck(strings.TrimPrefix(server.URL, "http://")); err == nil {
		t.Error("503でエラーが返されるべき")
	}
	if err := runHealthcheck(""); err == nil {
		t.Error("制御APIが無効な場合はエラーが返されるべき")
	}
}

// --- core のテスト ---

func newTestCore(t *testing.T, controlAddr string) (*core, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cfg := &config.Config{
		SettingsPath:     path,
		FetchTimeout:     time.Second,
		FetchMaxSize:     1 << 20,
		ControlAddr:      controlAddr,
		ControlRateLimit: 100,
		LogLevel:         "info",
	}
	store := config.NewStore(path, "http://127.0.0.1:1", log)
	current, err := store.Load()
	if err != nil {
		t.Fatalf("Load() がエラーを返した: %v", err)
	}
	return newCore(cfg, store, current, log), path
}

func TestCore_ServeExposesControlAPI(t *testing.T) {
	c, path := newTestCore(t, "127.0.0.1:0")

	err := c.serve(context.Background(), func(ctx context.Context) error {
		base := "http://" + c.listenAddr

		resp, err := http.Get(base + "/health")
		if err != nil {
			t.Fatalf("GET /health がエラーを返した: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("/health status = %d", resp.StatusCode)
		}

		// 未設定のため手動更新は拒否される
		resp, err = http.Post(base+"/api/refresh", "application/json", nil)
		if err != nil {
			t.Fatalf("POST /api/refresh がエラーを返した: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("/api/refresh status = %d, want 409", resp.StatusCode)
		}

		req, _ := http.NewRequest(http.MethodPut, base+"/api/settings/interval", strings.NewReader(`{"seconds":30}`))
		resp, err = http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT /api/settings/interval がエラーを返した: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("/api/settings/interval status = %d, want 204", resp.StatusCode)
		}

		resp, err = http.Get(base + "/api/snapshot")
		if err != nil {
			t.Fatalf("GET /api/snapshot がエラーを返した: %v", err)
		}
		var snap model.Snapshot
		json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if snap.Configured {
			t.Error("configured = true, want false")
		}
		if snap.IntervalSeconds != 30 {
			t.Errorf("refresh_interval_seconds = %d, want 30", snap.IntervalSeconds)
		}

		resp, err = http.Get(base + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics がエラーを返した: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !strings.Contains(string(body), "quotaball_fetch_in_flight") {
			t.Error("/metrics にquotaball_fetch_in_flightが含まれていない")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("serve() がエラーを返した: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("設定ファイルが保存されていない: %v", err)
	}
	if !strings.Contains(string(data), "refresh_interval_seconds: 30") {
		t.Errorf("更新間隔が保存されていない:\n%s", data)
	}

	select {
	case <-c.scheduler.Done():
	default:
		t.Error("serve終了後もスケジューラが動作している")
	}
}

func TestCore_ServeWithoutControlAPIStopsOnCancel(t *testing.T) {
	c, _ := newTestCore(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.serve(ctx, nil)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() がエラーを返した: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("キャンセル後もserveが終了しない")
	}
	if c.listenAddr != "" {
		t.Errorf("制御APIが無効なのにlistenした: %s", c.listenAddr)
	}
}

func TestCore_ServeReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listenに失敗: %v", err)
	}
	defer ln.Close()

	c, _ := newTestCore(t, ln.Addr().String())
	if err := c.serve(context.Background(), nil); err == nil {
		t.Fatal("使用中のアドレスでエラーが返されるべき")
	}
}

func TestCore_UIErrorIsReturned(t *testing.T) {
	c, _ := newTestCore(t, "")
	want := errors.New("terminal closed")

	err := c.serve(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
