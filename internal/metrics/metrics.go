// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値。
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// クレデンシャル種別ラベルの値。
const (
	CredentialLogin     = "login"
	CredentialLongLived = "longlived"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証フローやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(provider, outcome string)
	RecordLink(outcome string)
	RecordCredentialIssued(kind string)
	RecordHTTPStatus(statusCode int)
	RecordProviderLatency(provider string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins            *prometheus.CounterVec
	links             *prometheus.CounterVec
	credentialsIssued *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamauth_logins_total",
			Help: "プロバイダー・結果別のログイン数",
		}, []string{"provider", "outcome"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamauth_links_total",
			Help: "結果別のDiscord紐付け数",
		}, []string{"outcome"}),
		credentialsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamauth_credentials_issued_total",
			Help: "種別ごとの発行済みクレデンシャル数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steamauth_provider_latency_seconds",
			Help:    "IdP呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.logins,
		c.links,
		c.credentialsIssued,
		c.httpStatus,
		c.providerLatency,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(provider, outcome string) {
	c.logins.WithLabelValues(provider, outcome).Inc()
}

// RecordLink はDiscord紐付けの結果を記録する。
func (c *Collector) RecordLink(outcome string) {
	c.links.WithLabelValues(outcome).Inc()
}

// RecordCredentialIssued はクレデンシャル発行を記録する。
func (c *Collector) RecordCredentialIssued(kind string) {
	c.credentialsIssued.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はIdP呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
