// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 要約の作成経路ラベル
const (
	SourceText = "text"
	SourceFile = "file"
)

// AI呼び出し結果ラベル
const (
	AIResultSuccess   = "success"
	AIResultTimeout   = "timeout"
	AIResultError     = "error"
	AIResultMalformed = "malformed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、AIゲートウェイ、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSummaryCreated(source string)
	RecordSummaryDeleted()
	RecordSummaryRegenerated()
	RecordAIRequest(model, result string)
	RecordAILatency(duration time.Duration)
	RecordParseStage(stage string)
	RecordBlobBytesStored(n int64)
	RecordShare()
	RecordOrphanBlobsDeleted(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	summariesCreated     *prometheus.CounterVec
	summariesDeleted     prometheus.Counter
	summariesRegenerated prometheus.Counter
	aiRequests           *prometheus.CounterVec
	aiLatency            prometheus.Histogram
	parseStage           *prometheus.CounterVec
	blobBytesStored      prometheus.Counter
	shares               prometheus.Counter
	orphanBlobsDeleted   prometheus.Counter
	httpStatus           *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		summariesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefly_summaries_created_total",
			Help: "作成経路別の要約作成数",
		}, []string{"source"}),
		summariesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "briefly_summaries_deleted_total",
			Help: "削除された要約の合計数",
		}),
		summariesRegenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "briefly_summaries_regenerated_total",
			Help: "再生成された要約の合計数",
		}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefly_ai_requests_total",
			Help: "モデルと結果別のAI呼び出し数",
		}, []string{"model", "result"}),
		aiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "briefly_ai_latency_seconds",
			Help:    "AI呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		parseStage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefly_ai_parse_stage_total",
			Help: "AI応答の解析に成功した段階別の件数",
		}, []string{"stage"}),
		blobBytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "briefly_blob_bytes_stored_total",
			Help: "保存されたアップロードファイルの合計バイト数",
		}),
		shares: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "briefly_shares_total",
			Help: "作成された共有の合計数",
		}),
		orphanBlobsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "briefly_orphan_blobs_deleted_total",
			Help: "クリーンアップで削除された孤立ファイルの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefly_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.summariesCreated,
		c.summariesDeleted,
		c.summariesRegenerated,
		c.aiRequests,
		c.aiLatency,
		c.parseStage,
		c.blobBytesStored,
		c.shares,
		c.orphanBlobsDeleted,
		c.httpStatus,
	)

	return c
}

// RecordSummaryCreated は要約作成を記録する。
func (c *Collector) RecordSummaryCreated(source string) {
	c.summariesCreated.WithLabelValues(source).Inc()
}

// RecordSummaryDeleted は要約削除を記録する。
func (c *Collector) RecordSummaryDeleted() {
	c.summariesDeleted.Inc()
}

// RecordSummaryRegenerated は要約再生成を記録する。
func (c *Collector) RecordSummaryRegenerated() {
	c.summariesRegenerated.Inc()
}

// RecordAIRequest はAI呼び出しの結果を記録する。
func (c *Collector) RecordAIRequest(model, result string) {
	c.aiRequests.WithLabelValues(model, result).Inc()
}

// RecordAILatency はAI呼び出しのレイテンシを記録する。
func (c *Collector) RecordAILatency(duration time.Duration) {
	c.aiLatency.Observe(duration.Seconds())
}

// RecordParseStage はAI応答の解析段階を記録する。
func (c *Collector) RecordParseStage(stage string) {
	c.parseStage.WithLabelValues(stage).Inc()
}

// RecordBlobBytesStored は保存したファイルのバイト数を記録する。
func (c *Collector) RecordBlobBytesStored(n int64) {
	c.blobBytesStored.Add(float64(n))
}

// RecordShare は共有作成を記録する。
func (c *Collector) RecordShare() {
	c.shares.Inc()
}

// RecordOrphanBlobsDeleted は孤立ファイルの削除数を記録する。
func (c *Collector) RecordOrphanBlobsDeleted(count int) {
	c.orphanBlobsDeleted.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
