// Package metrics exposes Prometheus collectors for the simulation engine:
//
//	grid_ticks_total{item}          – ticks processed per item
//	grid_fills_total{item,side}     – orders filled per item and side
//	grid_ledger_events_total{result} – ledger inserts (recorded|duplicate|error)
//	grid_fee_charged_usd_total      – cumulative fees charged
//	grid_sessions_active            – currently running sessions
//
// Served at /metrics by the API server in Prometheus text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_ticks_total",
			Help: "Ticks processed",
		},
		[]string{"item"},
	)

	mtxFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_fills_total",
			Help: "Orders filled",
		},
		[]string{"item", "side"},
	)

	mtxLedgerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_ledger_events_total",
			Help: "Realized-PnL ledger events by result",
		},
		[]string{"result"},
	)

	mtxFeeCharged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_fee_charged_usd_total",
			Help: "Cumulative fees charged in USD",
		},
	)

	mtxSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_sessions_active",
			Help: "Currently running sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxTicks,
		mtxFills,
		mtxLedgerEvents,
		mtxFeeCharged,
		mtxSessionsActive,
	)
}

// Tick records one processed tick
func Tick(item string) {
	mtxTicks.WithLabelValues(item).Inc()
}

// Fill records one filled order
func Fill(item, side string) {
	mtxFills.WithLabelValues(item, side).Inc()
}

// LedgerEvent records a ledger insert outcome (recorded, duplicate, error)
func LedgerEvent(result string) {
	mtxLedgerEvents.WithLabelValues(result).Inc()
}

// FeeCharged adds to the cumulative fee counter
func FeeCharged(usd float64) {
	if usd > 0 {
		mtxFeeCharged.Add(usd)
	}
}

// SessionsActive sets the running session gauge
func SessionsActive(n int) {
	mtxSessionsActive.Set(float64(n))
}

// Handler returns the /metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
