package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the swap ledger node.
type Metrics struct {
	// --- Event processing ---
	EventsApplied     *prometheus.CounterVec
	EventsDuplicate   *prometheus.CounterVec
	EventsUnconfirmed prometheus.Counter
	EventErrors       *prometheus.CounterVec
	EventApplyDur     *prometheus.HistogramVec

	// --- Orders & fulfillment ---
	OrdersOpened             *prometheus.CounterVec
	OrdersSettled            *prometheus.CounterVec
	OrdersOutstanding        *prometheus.GaugeVec
	StakeWithdrawalsRejected prometheus.Counter
	FulfillmentHistorySize   prometheus.Gauge

	// --- Price curve ---
	PriceRecomputes   prometheus.Counter
	RDGBidUSDEstimate prometheus.Gauge

	// --- Ingestion ---
	IngestReceived    *prometheus.CounterVec
	IngestParseErrors *prometheus.CounterVec
	IngestToApply     *prometheus.HistogramVec
	PublishDrops      prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Replay ---
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_events_applied_total",
			Help: "Confirmed events folded into party state",
		}, []string{"event_type"}),

		EventsDuplicate: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_events_duplicate_total",
			Help: "Events skipped as already applied",
		}, []string{"event_type"}),

		EventsUnconfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_events_unconfirmed_total",
			Help: "Unconfirmed events tracked pending confirmation",
		}),

		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_event_errors_total",
			Help: "Events rejected with a processing error",
		}, []string{"code"}),

		EventApplyDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swapledger_event_apply_duration_seconds",
			Help:    "Time to fold a single event into party state",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		OrdersOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_orders_opened_total",
			Help: "Fulfillment orders opened",
		}, []string{"side"}),

		OrdersSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_orders_settled_total",
			Help: "Fulfillment orders settled by an observed payout",
		}, []string{"side"}),

		OrdersOutstanding: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swapledger_orders_outstanding",
			Help: "Unfulfilled orders by queue",
		}, []string{"queue"}),

		StakeWithdrawalsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_stake_withdrawals_rejected_total",
			Help: "Stake withdrawal requests that could not be funded",
		}),

		FulfillmentHistorySize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swapledger_fulfillment_history_size",
			Help: "Settled fulfillment records held in memory",
		}),

		PriceRecomputes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_price_recomputes_total",
			Help: "Central price curve recomputations",
		}),

		RDGBidUSDEstimate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swapledger_rdg_bid_usd_estimate",
			Help: "Highest current bid-side USD/RDG estimate",
		}),

		IngestReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_ingest_received_total",
			Help: "Messages received from the event stream",
		}, []string{"subject"}),

		IngestParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_ingest_parse_errors_total",
			Help: "Messages that failed wire parsing",
		}, []string{"subject"}),

		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swapledger_ingest_to_apply_seconds",
			Help:    "NATS receive to party state apply complete",
			Buckets: ingestBuckets,
		}, []string{"event_type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_publish_drops_total",
			Help: "Order notifications dropped due to full publish channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swapledger_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swapledger_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swapledger_persist_last_sequence",
			Help: "Last persisted event sequence",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swapledger_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swapledger_replay_duration_seconds",
			Help: "Total replay time",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swapledger_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swapledger_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetQueueDepths records the outstanding order queue sizes.
func (m *Metrics) SetQueueDepths(swapOrders, withdrawals int) {
	m.OrdersOutstanding.WithLabelValues("swap_orders").Set(float64(swapOrders))
	m.OrdersOutstanding.WithLabelValues("withdrawals").Set(float64(withdrawals))
}
