package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gowfs"

	MetricRequests      = "requests_total"
	MetricTransactions  = "transactions_total"
	MetricActions       = "transaction_actions_total"
	MetricLocks         = "locks_total"
	MetricRecords       = "records_ingested_total"
	MetricRequestTiming = "request_duration_seconds"
)

var CounterRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRequests,
		Help:      "Requests by operation and exception code.",
	},
	[]string{
		"operation",
		"code",
	},
)

var CounterTransactions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricTransactions,
		Help:      "Transactions by outcome.",
	},
	[]string{
		"outcome",
	},
)

var CounterActions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricActions,
		Help:      "Transaction actions by kind.",
	},
	[]string{
		"kind",
	},
)

var CounterLocks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricLocks,
		Help:      "Feature locks by operation.",
	},
	[]string{
		"op",
	},
)

var CounterRecords = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRecords,
		Help:      "Metadata records ingested by mode.",
	},
	[]string{
		"mode",
	},
)

var HistogramRequests = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      MetricRequestTiming,
		Help:      "Request duration by operation.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{
		"operation",
	},
)

func init() {
	prometheus.MustRegister(CounterRequests)
	prometheus.MustRegister(CounterTransactions)
	prometheus.MustRegister(CounterActions)
	prometheus.MustRegister(CounterLocks)
	prometheus.MustRegister(CounterRecords)
	prometheus.MustRegister(HistogramRequests)
}

// ObserveRequest code 为空表示成功
func ObserveRequest(operation, code string, start time.Time) {
	if code == "" {
		code = "OK"
	}
	CounterRequests.WithLabelValues(operation, code).Inc()
	HistogramRequests.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func IncTransaction(outcome string) {
	CounterTransactions.WithLabelValues(outcome).Inc()
}

func IncAction(kind string) {
	CounterActions.WithLabelValues(kind).Inc()
}

func IncLock(op string) {
	CounterLocks.WithLabelValues(op).Inc()
}

func IncRecord(mode string) {
	CounterRecords.WithLabelValues(mode).Inc()
}
