// Package quota はリモートのクォータAPIからサブスクリプション一覧を取得する。
// 1回のフェッチは1回のHTTPリクエストで、再試行は行わない（再試行は更新スケジューラの責務）。
package quota

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/quotaball/internal/model"
)

const (
	// DefaultAPIBase はクォータAPIのデフォルトのベースURL。
	DefaultAPIBase = "https://right.codes"
	// subscriptionsPath はサブスクリプション一覧のエンドポイント。
	subscriptionsPath = "/subscriptions/list"
	// defaultMaxBodySize はレスポンスボディの最大サイズ（1MiB）。
	defaultMaxBodySize = 1 << 20
)

// MetricsRecorder はフェッチのHTTPレベルのメトリクスを記録するインターフェース。
type MetricsRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// Client はクォータAPIのクライアント。
// HTTPクライアントのTimeoutとコンテキストで待ち時間に上限を設ける。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     MetricsRecorder
	decoder     *Decoder
	apiBase     string
	maxBodySize int64
}

// NewClient はClientの新しいインスタンスを生成する。
// apiBaseが空の場合はDefaultAPIBase、maxBodySizeが0以下の場合は1MiBを使用する。
// metricsはnilでもよい。
func NewClient(
	httpClient *http.Client,
	apiBase string,
	logger *slog.Logger,
	metrics MetricsRecorder,
	maxBodySize int64,
) *Client {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		metrics:     metrics,
		decoder:     NewDecoder(),
		apiBase:     apiBase,
		maxBodySize: maxBodySize,
	}
}

// Fetch は認証情報を使ってサブスクリプション一覧を1回取得する。
// 通信失敗はNetwork、401/403はAuth、2xxでデコードできない場合はParseに分類する。
func (c *Client) Fetch(ctx context.Context, creds model.Credentials) model.FetchOutcome {
	start := time.Now()
	requestID := uuid.NewString()

	if !creds.Configured() {
		c.logger.Warn("認証情報が未設定のためフェッチできません",
			slog.String("request_id", requestID),
		)
		return model.Failure(model.ErrorKindAuth, model.ErrNotConfigured)
	}

	reqURL := c.apiBase + subscriptionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Failure(model.ErrorKindNetwork, fmt.Errorf("リクエスト作成に失敗: %w", err))
	}
	applyHeaders(req, c.apiBase, creds, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("HTTPリクエストに失敗しました",
			slog.String("request_id", requestID),
			slog.String("url", reqURL),
			slog.String("error", err.Error()),
		)
		return model.Failure(model.ErrorKindNetwork, fmt.Errorf("HTTPリクエスト失敗: %w", err))
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
		c.metrics.RecordFetchLatency(duration)
	}

	if kind := ClassifyHTTPStatus(resp.StatusCode); kind != "" {
		// 接続を再利用できるよう残りのボディを読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodySize))

		level := slog.LevelError
		if kind == model.ErrorKindAuth {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "クォータAPIがエラーステータスを返しました",
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_kind", string(kind)),
		)
		outcome := model.Failure(kind, fmt.Errorf("クォータAPIがステータス %d を返しました", resp.StatusCode))
		outcome.StatusCode = resp.StatusCode
		return outcome
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		outcome := model.Failure(model.ErrorKindNetwork, fmt.Errorf("レスポンス読み取り失敗: %w", err))
		outcome.StatusCode = resp.StatusCode
		return outcome
	}

	subs, err := c.decoder.Decode(body)
	if err != nil {
		c.logger.Error("クォータAPIのレスポンスのパースに失敗しました",
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("body_size", len(body)),
			slog.String("error", err.Error()),
		)
		outcome := model.Failure(model.ErrorKindParse, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
		outcome.StatusCode = resp.StatusCode
		return outcome
	}

	c.logger.Info("クォータ情報を取得しました",
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("subscription_count", len(subs)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	outcome := model.Success(subs)
	outcome.StatusCode = resp.StatusCode
	return outcome
}
