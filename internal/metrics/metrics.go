// Package metrics holds the Prometheus collectors of the reconciliation service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ReconciliationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sales_reconciliation",
	Subsystem: "engine",
	Name:      "runs_total",
	Help:      "Total matching passes by trigger and result.",
}, []string{"trigger", "result"})

var RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sales_reconciliation",
	Subsystem: "engine",
	Name:      "run_duration_seconds",
	Help:      "Duration of a matching pass.",
	Buckets:   prometheus.DefBuckets,
})

var PaymentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sales_reconciliation",
	Subsystem: "engine",
	Name:      "payment_decisions_total",
	Help:      "Payments evaluated by the engine, by outcome.",
}, []string{"outcome"})

var ManualMatches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sales_reconciliation",
	Subsystem: "engine",
	Name:      "manual_matches_total",
	Help:      "Payments linked to a sale by an operator.",
})

var PaymentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sales_reconciliation",
	Subsystem: "ingestion",
	Name:      "payments_total",
	Help:      "Canonical payments received, by result (inserted, duplicate, rejected).",
}, []string{"result"})

// ObserveRun records a finished pass. outcomes maps an outcome label to the
// number of payments that ended with it.
func ObserveRun(trigger string, err error, took time.Duration, outcomes map[string]int) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ReconciliationRuns.WithLabelValues(trigger, result).Inc()
	RunDuration.Observe(took.Seconds())
	for outcome, n := range outcomes {
		PaymentDecisions.WithLabelValues(outcome).Add(float64(n))
	}
}

func ObserveIngestion(inserted, duplicates, rejected int) {
	PaymentsIngested.WithLabelValues("inserted").Add(float64(inserted))
	PaymentsIngested.WithLabelValues("duplicate").Add(float64(duplicates))
	PaymentsIngested.WithLabelValues("rejected").Add(float64(rejected))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
