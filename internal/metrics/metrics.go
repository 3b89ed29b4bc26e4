package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "godz_eyes"

// Poller
var (
	PollerHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "head_block",
		Help:      "Latest chain head observed by the poller",
	}, []string{"chain"})

	PollerLastProcessedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "last_processed_block",
		Help:      "Last block fully handled by the poller",
	}, []string{"chain"})

	PollerLagBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "lag_blocks",
		Help:      "Distance between chain head and last processed block",
	}, []string{"chain"})

	PollerBackoffSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "backoff_seconds",
		Help:      "Current reconnect backoff",
	}, []string{"chain"})

	PollerHeadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "head_errors_total",
		Help:      "Total failed chain head reads",
	}, []string{"chain"})

	PollerLagJumps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "lag_jumps_total",
		Help:      "Total times the poller jumped to the chain tip",
	}, []string{"chain"})

	PollerBlocksJumped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "blocks_jumped_total",
		Help:      "Total blocks never processed because of a lag jump",
	}, []string{"chain"})

	BlocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "blocks_processed_total",
		Help:      "Total blocks whose transactions were processed",
	}, []string{"chain"})

	BlocksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "blocks_skipped_total",
		Help:      "Total blocks skipped, by reason",
	}, []string{"chain", "reason"})

	BlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "block_duration_seconds",
		Help:      "Time spent on the per-block procedure",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"chain"})
)

// Transaction processor
var (
	TxProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "transactions_total",
		Help:      "Total candidate transactions processed",
	}, []string{"chain"})

	TxSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "transactions_skipped_total",
		Help:      "Total transactions skipped, by reason",
	}, []string{"chain", "reason"})

	TxErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "transaction_errors_total",
		Help:      "Total transactions that failed processing",
	}, []string{"chain"})

	TxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "transaction_duration_seconds",
		Help:      "Per-transaction processing duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"chain"})

	TransfersDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decoder",
		Name:      "transfers_total",
		Help:      "Total transfer events decoded for known assets",
	}, []string{"chain"})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decoder",
		Name:      "failures_total",
		Help:      "Total transfer-shaped logs that failed to decode",
	}, []string{"chain"})

	SwapActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "actions_total",
		Help:      "Total swap actions emitted by the classifier",
	}, []string{"chain", "direction", "rule"})

	AlertsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "suppressed_total",
		Help:      "Total swap actions suppressed as already alerted",
	}, []string{"chain"})

	DedupEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "entries",
		Help:      "Live keys held by the in-memory dedup store",
	}, []string{"chain"})
)

// RPC
var (
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total RPC calls by method and status",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	}, []string{"chain"})

	RPCCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "circuit_state",
		Help:      "RPC circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"chain"})
)

// Database pool
var (
	DBPoolOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	}, []string{"chain"})

	DBPoolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	}, []string{"chain"})

	DBPoolIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Current number of idle PostgreSQL connections in the pool",
	}, []string{"chain"})

	AlertHistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "postgres",
		Name:      "alert_history_writes_total",
		Help:      "Total alert history rows written, by status",
	}, []string{"chain", "status"})
)

// Alerts
var (
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "failed_total",
		Help:      "Total alert deliveries that failed",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total operational alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})

	PollerHealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "status",
		Help:      "Poller health (0=unknown, 1=healthy, 2=degraded, 3=unhealthy)",
	}, []string{"chain"})

	PollerConsecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "consecutive_failures",
		Help:      "Number of consecutive poller failures",
	}, []string{"chain"})
)
