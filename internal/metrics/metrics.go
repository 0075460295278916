// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/quotaball/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// クォータクライアントと更新スケジューラから利用する。
type MetricsCollector interface {
	RecordFetchSuccess()
	RecordFetchFailure(kind model.ErrorKind)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordTriggerCoalesced(trigger string)
	SetInFlight(inFlight bool)
	SetSubscriptions(subs []model.Subscription)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess     prometheus.Counter
	fetchFail        *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	coalesced        *prometheus.CounterVec
	inFlight         prometheus.Gauge
	subscriptions    prometheus.Gauge
	quotaRemaining   *prometheus.GaugeVec
	lastSuccessStamp prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotaball_fetch_success_total",
			Help: "クォータフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotaball_fetch_fail_total",
			Help: "エラー種別ごとのクォータフェッチ失敗の合計数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotaball_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotaball_fetch_latency_seconds",
			Help:    "クォータフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotaball_trigger_coalesced_total",
			Help: "フェッチ中のため統合された更新要求の合計数",
		}, []string{"trigger"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotaball_fetch_in_flight",
			Help: "実行中のフェッチ数（0または1）",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotaball_subscriptions",
			Help: "最後に取得したサブスクリプション数",
		}),
		quotaRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotaball_quota_remaining",
			Help: "サブスクリプションごとの残りクォータ（表示用に補正済み）",
		}, []string{"subscription_id"}),
		lastSuccessStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotaball_last_success_timestamp_seconds",
			Help: "最後にフェッチが成功したUNIX時刻",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.httpStatus,
		c.fetchLatency,
		c.coalesced,
		c.inFlight,
		c.subscriptions,
		c.quotaRemaining,
		c.lastSuccessStamp,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
	c.lastSuccessStamp.SetToCurrentTime()
}

// RecordFetchFailure はフェッチ失敗をエラー種別ごとに記録する。
func (c *Collector) RecordFetchFailure(kind model.ErrorKind) {
	c.fetchFail.WithLabelValues(string(kind)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordTriggerCoalesced は統合された更新要求を記録する。
func (c *Collector) RecordTriggerCoalesced(trigger string) {
	c.coalesced.WithLabelValues(trigger).Inc()
}

// SetInFlight は実行中のフェッチの有無を記録する。
func (c *Collector) SetInFlight(inFlight bool) {
	if inFlight {
		c.inFlight.Set(1)
		return
	}
	c.inFlight.Set(0)
}

// SetSubscriptions は最新のサブスクリプション一覧を記録する。
// 一覧から消えたサブスクリプションの系列は削除される。
func (c *Collector) SetSubscriptions(subs []model.Subscription) {
	c.subscriptions.Set(float64(len(subs)))
	c.quotaRemaining.Reset()
	for _, s := range subs {
		c.quotaRemaining.WithLabelValues(s.ID).Set(s.DisplayRemaining())
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
