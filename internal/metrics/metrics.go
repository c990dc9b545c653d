// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同期結果のラベル値
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Strava同期やサービス層から利用する。
type MetricsCollector interface {
	RecordSyncResult(outcome string)
	RecordSyncLatency(duration time.Duration)
	RecordActivitiesImported(inserted, updated, skipped int)
	RecordTokenRefresh(outcome string)
	RecordUpstreamStatus(statusCode int)
	RecordActivityRecorded(source string)
	RecordLeaderboardLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncResult         *prometheus.CounterVec
	syncLatency        prometheus.Histogram
	activitiesImported *prometheus.CounterVec
	tokenRefresh       *prometheus.CounterVec
	upstreamStatus     *prometheus.CounterVec
	activitiesRecorded *prometheus.CounterVec
	leaderboardLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movemonth_strava_sync_total",
			Help: "Strava同期の結果別合計数",
		}, []string{"outcome"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "movemonth_strava_sync_latency_seconds",
			Help:    "Strava同期1回あたりの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activitiesImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movemonth_strava_activities_imported_total",
			Help: "Stravaから取り込んだアクティビティ数（inserted/updated/skipped）",
		}, []string{"result"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movemonth_strava_token_refresh_total",
			Help: "Stravaトークン更新の結果別合計数",
		}, []string{"outcome"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movemonth_strava_http_status_total",
			Help: "Strava APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		activitiesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movemonth_activities_recorded_total",
			Help: "登録されたアクティビティのソース別合計数",
		}, []string{"source"}),
		leaderboardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "movemonth_leaderboard_latency_seconds",
			Help:    "リーダーボード集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.syncResult,
		c.syncLatency,
		c.activitiesImported,
		c.tokenRefresh,
		c.upstreamStatus,
		c.activitiesRecorded,
		c.leaderboardLatency,
	)

	return c
}

// RecordSyncResult は同期の結果を記録する。outcomeは成功時success、失敗時はエラーコード。
func (c *Collector) RecordSyncResult(outcome string) {
	c.syncResult.WithLabelValues(outcome).Inc()
}

// RecordSyncLatency は同期の所要時間を記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordActivitiesImported は取り込み件数を記録する。
func (c *Collector) RecordActivitiesImported(inserted, updated, skipped int) {
	c.activitiesImported.WithLabelValues("inserted").Add(float64(inserted))
	c.activitiesImported.WithLabelValues("updated").Add(float64(updated))
	c.activitiesImported.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordTokenRefresh はトークン更新の結果を記録する。
func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefresh.WithLabelValues(outcome).Inc()
}

// RecordUpstreamStatus はStrava APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordActivityRecorded はアクティビティ登録を記録する。
func (c *Collector) RecordActivityRecorded(source string) {
	c.activitiesRecorded.WithLabelValues(source).Inc()
}

// RecordLeaderboardLatency はリーダーボード集計のレイテンシを記録する。
func (c *Collector) RecordLeaderboardLatency(duration time.Duration) {
	c.leaderboardLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordSyncResult(string)                {}
func (Nop) RecordSyncLatency(time.Duration)        {}
func (Nop) RecordActivitiesImported(int, int, int) {}
func (Nop) RecordTokenRefresh(string)              {}
func (Nop) RecordUpstreamStatus(int)               {}
func (Nop) RecordActivityRecorded(string)          {}
func (Nop) RecordLeaderboardLatency(time.Duration) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
