// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// オーケストレーターやスイーパーから利用する。
type MetricsCollector interface {
	RecordProvisionSuccess()
	RecordProvisionFailure(reason string)
	RecordCompensation()
	RecordRevoke()
	RecordDeliveryFailure()
	RecordExpiredRevoked(count int)
	RecordSweepLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	provisionSuccess prometheus.Counter
	provisionFail    *prometheus.CounterVec
	compensation     prometheus.Counter
	revoke           prometheus.Counter
	deliveryFail     prometheus.Counter
	expiredRevoked   prometheus.Counter
	sweepLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		provisionSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_provision_success_total",
			Help: "プロビジョニング成功の合計数",
		}),
		provisionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagate_provision_fail_total",
			Help: "プロビジョニング失敗の合計数（エラーコード別）",
		}, []string{"reason"}),
		compensation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_compensation_total",
			Help: "補償処理（作成済みアカウントの削除）の実行回数",
		}),
		revoke: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_revoke_total",
			Help: "アカウント失効処理の合計数",
		}),
		deliveryFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_delivery_fail_total",
			Help: "資格情報通知の配送失敗の合計数",
		}),
		expiredRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_expired_revoked_total",
			Help: "期限切れスイープで失効したアカウントの合計数",
		}),
		sweepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediagate_sweep_latency_seconds",
			Help:    "期限切れスイープ1サイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.provisionSuccess,
		c.provisionFail,
		c.compensation,
		c.revoke,
		c.deliveryFail,
		c.expiredRevoked,
		c.sweepLatency,
	)

	return c
}

// RecordProvisionSuccess はプロビジョニング成功を記録する。
func (c *Collector) RecordProvisionSuccess() {
	c.provisionSuccess.Inc()
}

// RecordProvisionFailure はプロビジョニング失敗をエラーコード別に記録する。
func (c *Collector) RecordProvisionFailure(reason string) {
	c.provisionFail.WithLabelValues(reason).Inc()
}

// RecordCompensation は補償処理の実行を記録する。
func (c *Collector) RecordCompensation() {
	c.compensation.Inc()
}

// RecordRevoke は失効処理を記録する。
func (c *Collector) RecordRevoke() {
	c.revoke.Inc()
}

// RecordDeliveryFailure は通知配送の失敗を記録する。
func (c *Collector) RecordDeliveryFailure() {
	c.deliveryFail.Inc()
}

// RecordExpiredRevoked はスイープで失効したアカウント数を記録する。
func (c *Collector) RecordExpiredRevoked(count int) {
	c.expiredRevoked.Add(float64(count))
}

// RecordSweepLatency はスイープ1サイクルのレイテンシを記録する。
func (c *Collector) RecordSweepLatency(duration time.Duration) {
	c.sweepLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
