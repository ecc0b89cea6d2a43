// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層と購読エンジンから利用する。
type MetricsCollector interface {
	RecordMutation(operation string)
	RecordHTTPStatus(statusCode int)
	SubscriptionStarted()
	SubscriptionEnded()
	RecomputeObserved(table string)
	PushObserved(d time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	mutations     *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	subscriptions prometheus.Gauge
	recomputes    *prometheus.CounterVec
	pushLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_mutations_total",
			Help: "コミットされたミューテーションの操作別合計数",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskdeck_live_subscriptions",
			Help: "現在登録されているライブクエリ購読数",
		}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_query_recompute_total",
			Help: "ライブクエリ再計算のテーブル別合計数",
		}, []string{"table"}),
		pushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskdeck_push_latency_seconds",
			Help:    "再計算からスナップショット配信までのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.mutations,
		c.httpStatus,
		c.subscriptions,
		c.recomputes,
		c.pushLatency,
	)

	return c
}

// RecordMutation はコミットされたミューテーションを記録する。
func (c *Collector) RecordMutation(operation string) {
	c.mutations.WithLabelValues(operation).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SubscriptionStarted は購読数ゲージを増やす。
func (c *Collector) SubscriptionStarted() {
	c.subscriptions.Inc()
}

// SubscriptionEnded は購読数ゲージを減らす。
func (c *Collector) SubscriptionEnded() {
	c.subscriptions.Dec()
}

// RecomputeObserved はライブクエリ再計算を記録する。
func (c *Collector) RecomputeObserved(table string) {
	c.recomputes.WithLabelValues(table).Inc()
}

// PushObserved はスナップショット配信のレイテンシを記録する。
func (c *Collector) PushObserved(d time.Duration) {
	c.pushLatency.Observe(d.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
