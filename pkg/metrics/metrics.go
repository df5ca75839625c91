// Package metrics はAPIサーバーのPrometheusメトリクスを提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// httpBuckets はHTTPリクエスト処理時間のバケット（秒）。
var httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics はAPIサーバーのメトリクス一式。
// 独自のレジストリを持つため、複数生成してもグローバル状態を汚さない。
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authOutcomes    *prometheus.CounterVec
	credentialFlows *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
}

// New は名前空間付きのメトリクスを生成して登録する。
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "ルートテンプレート・メソッド・ステータス別のHTTPリクエスト数",
			},
			[]string{"route", "method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "ルートテンプレート別のHTTPリクエスト処理時間",
				Buckets:   httpBuckets,
			},
			[]string{"route", "method"},
		),
		authOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_gate_outcomes_total",
				Help:      "認証ゲートの判定結果別の件数",
			},
			[]string{"outcome"},
		),
		credentialFlows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_flows_total",
				Help:      "登録・ログイン・トークン再発行の結果別の件数",
			},
			[]string{"flow", "outcome"},
		),
		upstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "外部サービス呼び出しの結果別の件数",
			},
			[]string{"upstream", "operation", "outcome"},
		),
	}
}

// Middleware はHTTPリクエスト数と処理時間を記録するGinミドルウェアを返す。
// ルートはパスではなくテンプレート（例: /summarizes/:id）で集計する。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Handler はメトリクスを公開するHTTPハンドラーを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry は内部のレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAuth は認証ゲートの判定結果を記録する。
func (m *Metrics) RecordAuth(outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCredentialFlow は登録・ログイン・再発行の結果を記録する。
func (m *Metrics) RecordCredentialFlow(flow, outcome string) {
	if m == nil {
		return
	}
	m.credentialFlows.WithLabelValues(flow, outcome).Inc()
}

// RecordUpstream は外部サービス呼び出しの結果を記録する。
func (m *Metrics) RecordUpstream(upstream, operation, outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(upstream, operation, outcome).Inc()
}
