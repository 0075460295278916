package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/quotaball/internal/model"
)

// findMetricFamily は指定した名前のメトリクスファミリーを返す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordFetchSuccess_IncrementsCounter はフェッチ成功カウンタが増加することを検証する。
func TestRecordFetchSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess()
	c.RecordFetchSuccess()

	mf := findMetricFamily(t, reg, "quotaball_fetch_success_total")
	if mf == nil {
		t.Fatal("quotaball_fetch_success_total metric not found")
	}
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("fetch_success_total = %v, want 2", val)
	}

	stamp := findMetricFamily(t, reg, "quotaball_last_success_timestamp_seconds")
	if stamp == nil || stamp.GetMetric()[0].GetGauge().GetValue() <= 0 {
		t.Error("最終成功時刻が記録されていない")
	}
}

// TestRecordFetchFailure_CountsByKind はフェッチ失敗がエラー種別ごとに記録されることを検証する。
func TestRecordFetchFailure_CountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchFailure(model.ErrorKindNetwork)
	c.RecordFetchFailure(model.ErrorKindNetwork)
	c.RecordFetchFailure(model.ErrorKindAuth)

	mf := findMetricFamily(t, reg, "quotaball_fetch_fail_total")
	if mf == nil {
		t.Fatal("quotaball_fetch_fail_total metric not found")
	}

	counts := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		counts[labelValue(m, "kind")] = m.GetCounter().GetValue()
	}
	if counts["network"] != 2 {
		t.Errorf("network = %v, want 2", counts["network"])
	}
	if counts["auth"] != 1 {
		t.Errorf("auth = %v, want 1", counts["auth"])
	}
	if _, ok := counts["parse"]; ok {
		t.Error("記録されていないparseの系列が存在する")
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	mf := findMetricFamily(t, reg, "quotaball_http_status_total")
	if mf == nil {
		t.Fatal("quotaball_http_status_total metric not found")
	}

	statusCounts := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		statusCounts[labelValue(m, "status_code")] = m.GetCounter().GetValue()
	}
	if statusCounts["200"] != 2 {
		t.Errorf("status 200 count = %v, want 2", statusCounts["200"])
	}
	if statusCounts["401"] != 1 {
		t.Errorf("status 401 count = %v, want 1", statusCounts["401"])
	}
}

// TestRecordFetchLatency_ObservesHistogram はフェッチレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordFetchLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency(100 * time.Millisecond)
	c.RecordFetchLatency(2 * time.Second)

	mf := findMetricFamily(t, reg, "quotaball_fetch_latency_seconds")
	if mf == nil {
		t.Fatal("quotaball_fetch_latency_seconds metric not found")
	}
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordTriggerCoalesced_CountsByTrigger は統合された要求がトリガー別に記録されることを検証する。
func TestRecordTriggerCoalesced_CountsByTrigger(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTriggerCoalesced("tick")
	c.RecordTriggerCoalesced("manual")
	c.RecordTriggerCoalesced("manual")

	mf := findMetricFamily(t, reg, "quotaball_trigger_coalesced_total")
	if mf == nil {
		t.Fatal("quotaball_trigger_coalesced_total metric not found")
	}
	counts := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		counts[labelValue(m, "trigger")] = m.GetCounter().GetValue()
	}
	if counts["tick"] != 1 || counts["manual"] != 2 {
		t.Errorf("coalesced = %v", counts)
	}
}

// TestSetInFlight_TogglesGauge は実行中ゲージが0と1を行き来することを検証する。
func TestSetInFlight_TogglesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetInFlight(true)
	mf := findMetricFamily(t, reg, "quotaball_fetch_in_flight")
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("in_flight = %v, want 1", v)
	}

	c.SetInFlight(false)
	mf = findMetricFamily(t, reg, "quotaball_fetch_in_flight")
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Errorf("in_flight = %v, want 0", v)
	}
}

// TestSetSubscriptions_ReplacesSeries は一覧から消えたサブスクリプションの系列が削除されることを検証する。
func TestSetSubscriptions_ReplacesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetSubscriptions([]model.Subscription{
		{ID: "a", QuotaTotal: 100, QuotaRemaining: 40},
		{ID: "b", QuotaTotal: 10, QuotaRemaining: -3},
	})
	c.SetSubscriptions([]model.Subscription{
		{ID: "b", QuotaTotal: 10, QuotaRemaining: 15},
	})

	count := findMetricFamily(t, reg, "quotaball_subscriptions")
	if v := count.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("subscriptions = %v, want 1", v)
	}

	mf := findMetricFamily(t, reg, "quotaball_quota_remaining")
	if mf == nil {
		t.Fatal("quotaball_quota_remaining metric not found")
	}
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("系列数 = %d, want 1", len(mf.GetMetric()))
	}
	m := mf.GetMetric()[0]
	if labelValue(m, "subscription_id") != "b" {
		t.Errorf("subscription_id = %q, want b", labelValue(m, "subscription_id"))
	}
	// 表示用に合計値で頭打ちにされる
	if v := m.GetGauge().GetValue(); v != 10 {
		t.Errorf("quota_remaining = %v, want 10", v)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordFetchSuccess()
	c.RecordFetchFailure(model.ErrorKindParse)
	c.RecordHTTPStatus(200)
	c.RecordFetchLatency(500 * time.Millisecond)
	c.RecordTriggerCoalesced("tick")

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"quotaball_fetch_success_total",
		"quotaball_fetch_fail_total",
		"quotaball_http_status_total",
		"quotaball_fetch_latency_seconds",
		"quotaball_trigger_coalesced_total",
		"quotaball_fetch_in_flight",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordFetchSuccess()
	c2.RecordFetchSuccess()
	c2.RecordFetchSuccess()

	val1 := findMetricFamily(t, reg1, "quotaball_fetch_success_total").GetMetric()[0].GetCounter().GetValue()
	val2 := findMetricFamily(t, reg2, "quotaball_fetch_success_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 fetch_success = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 fetch_success = %v, want 2", val2)
	}
}
