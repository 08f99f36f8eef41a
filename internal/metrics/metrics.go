package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ItnGates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "itn",
		Name:      "gate_results_total",
		Help:      "ITN verification gate results by gate and outcome.",
	}, []string{"gate", "passed"})

	ItnOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "itn",
		Name:      "outcomes_total",
		Help:      "Processed ITNs by final outcome.",
	}, []string{"outcome"})

	SubscriptionSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "subscription",
		Name:      "syncs_total",
		Help:      "Subscription syncs against the gateway by result.",
	}, []string{"result"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "resync",
		Name:      "sweeps_total",
		Help:      "Resync sweeps by kind and status (ok, failed, locked).",
	}, []string{"sweep", "status"})

	LedgerCredits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "ledger",
		Name:      "entries_total",
		Help:      "Ledger entries written by transaction type.",
	}, []string{"type"})
)

func ObserveGate(gate string, passed bool) {
	ItnGates.WithLabelValues(gate, strconv.FormatBool(passed)).Inc()
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
