package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeyxx/CYNIC-sub012/logx"
)

type BlockRejectedReason string

var (
	BlockInvalidSignature BlockRejectedReason = "invalid_signature"
	BlockChainMismatch    BlockRejectedReason = "chain_mismatch"
	BlockHashMismatch     BlockRejectedReason = "hash_mismatch"
	BlockRejectedUnknown  BlockRejectedReason = "other"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds  prometheus.Gauge
	pendingJudgments   prometheus.Gauge
	blockTime          prometheus.Histogram
	rejectedBlockCount *prometheus.CounterVec
	blockHeight        prometheus.Gauge
	judgmentsInBlock   prometheus.Histogram
	anchorFailureCount prometheus.Counter
	finalityFallbacks  prometheus.Counter
	panicCount         prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "poj_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		pendingJudgments: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "poj_node_pending_judgments",
				Help: "The total judgments queued for the next block",
			},
		),
		blockTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "poj_node_block_time",
				Help: "Duration in second between creation of two consecutive blocks",
			},
		),
		rejectedBlockCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poj_node_rejected_block_count",
				Help: "The total number of rejected peer blocks",
			},
			[]string{"reason"},
		),
		blockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "poj_node_block_height",
				Help: "The current chain head slot",
			},
		),
		judgmentsInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "poj_node_judgments_in_block",
				Help: "Number of judgments in block",
			},
		),
		anchorFailureCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "poj_node_anchor_failure_count",
				Help: "The total number of failed anchor submissions",
			},
		),
		finalityFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "poj_node_finality_fallback_count",
				Help: "The total number of finality waits resolved by local timeout",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "poj_node_panic_count",
				Help: "The total number of recovered panics in background goroutines",
			},
		),
	}
}

var nodeMetrics = newNodePromMetrics()

// InitMetrics marks the node as up; metric collectors themselves are
// registered at package load.
func InitMetrics() {
	nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetPendingJudgments(count int) {
	nodeMetrics.pendingJudgments.Set(float64(count))
}

func RecordBlockTime(duration time.Duration) {
	nodeMetrics.blockTime.Observe(duration.Seconds())
}

func RecordRejectedBlock(reason BlockRejectedReason) {
	nodeMetrics.rejectedBlockCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func SetBlockHeight(slot uint64) {
	nodeMetrics.blockHeight.Set(float64(slot))
}

func RecordJudgmentsInBlock(count int) {
	nodeMetrics.judgmentsInBlock.Observe(float64(count))
}

func IncreaseAnchorFailureCount() {
	nodeMetrics.anchorFailureCount.Inc()
}

func IncreaseFinalityFallbackCount() {
	nodeMetrics.finalityFallbacks.Inc()
}

func IncreasePanicCount() {
	nodeMetrics.panicCount.Inc()
}
