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
// 登録処理、フロー、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(role, outcome string)
	RecordDocumentUpload(kind string, ok bool)
	RecordLogin(outcome string)
	RecordPasswordReset(outcome string)
	RecordDashboardRedirect(path string)
	RecordHTTPStatus(statusCode int)
	RecordProviderLatency(operation string, duration time.Duration)
}

// 登録・ログインの結果ラベル
const (
	OutcomeSuccess        = "success"
	OutcomeInvalid        = "invalid"
	OutcomeProviderError  = "provider_error"
	OutcomeNeedsReconcile = "needs_reconciliation"
	OutcomeRateLimited    = "rate_limited"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations     *prometheus.CounterVec
	documentUploads   *prometheus.CounterVec
	logins            *prometheus.CounterVec
	passwordResets    *prometheus.CounterVec
	dashboardRedirect *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawrest_registrations_total",
			Help: "ロール・結果別のサインアップ送信数",
		}, []string{"role", "outcome"}),
		documentUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawrest_document_uploads_total",
			Help: "書類種別・結果別のアップロード数",
		}, []string{"kind", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawrest_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		passwordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawrest_password_resets_total",
			Help: "結果別のパスワードリセット要求数",
		}, []string{"outcome"}),
		dashboardRedirect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawrest_dashboard_redirects_total",
			Help: "権限不足でトップへ戻したダッシュボードアクセス数",
		}, []string{"path"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawrest_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pawrest_provider_latency_seconds",
			Help:    "認証プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.registrations,
		c.documentUploads,
		c.logins,
		c.passwordResets,
		c.dashboardRedirect,
		c.httpStatus,
		c.providerLatency,
	)

	return c
}

// RecordRegistration はサインアップ送信の結果を記録する。
func (c *Collector) RecordRegistration(role, outcome string) {
	c.registrations.WithLabelValues(role, outcome).Inc()
}

// RecordDocumentUpload は書類アップロードの結果を記録する。
func (c *Collector) RecordDocumentUpload(kind string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.documentUploads.WithLabelValues(kind, result).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordPasswordReset はパスワードリセット要求の結果を記録する。
func (c *Collector) RecordPasswordReset(outcome string) {
	c.passwordResets.WithLabelValues(outcome).Inc()
}

// RecordDashboardRedirect はダッシュボードからのリダイレクトを記録する。
func (c *Collector) RecordDashboardRedirect(path string) {
	c.dashboardRedirect.WithLabelValues(path).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はプロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(operation string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRegistration(string, string) {}
func (Nop) RecordDocumentUpload(string, bool) {}
func (Nop) RecordLogin(string) {}
func (Nop) RecordPasswordReset(string) {}
func (Nop) RecordDashboardRedirect(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordProviderLatency(string, time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
