// Package metrics exposes the engine's Prometheus instrumentation,
// retargeting the teacher's "Tick -> Order latency" habit at "entry
// signal -> order ack" and "ENS event -> waiter resolution".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ENSReconnects counts reconnect attempts by outcome and strategy
// (soft/hard).
var ENSReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fxtrader",
		Subsystem: "ens",
		Name:      "reconnects_total",
		Help:      "Total ENS stream reconnect attempts",
	},
	[]string{"strategy", "outcome"},
)

// ENSDispatchLatency measures time from frame receipt to waiter
// dispatch.
var ENSDispatchLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "fxtrader",
		Subsystem: "ens",
		Name:      "dispatch_latency_ms",
		Help:      "Time from ENS frame decode to waiter dispatch in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
)

// WaiterBacklogDepth reports the current size of the waiter registry's
// undelivered-event ring buffer.
var WaiterBacklogDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fxtrader",
		Subsystem: "waiter",
		Name:      "backlog_depth",
		Help:      "Number of undelivered ENS events held in the waiter registry backlog",
	},
)

// OrderRoundTripLatency measures time from order submission to fill
// confirmation, by leg (entry/exit).
var OrderRoundTripLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fxtrader",
		Subsystem: "orchestrator",
		Name:      "order_round_trip_ms",
		Help:      "Time from order submission to fill confirmation in milliseconds",
		Buckets:   []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
	},
	[]string{"leg"},
)

// TradesTotal counts trades by terminal status.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fxtrader",
		Subsystem: "orchestrator",
		Name:      "trades_total",
		Help:      "Total trades by terminal status",
	},
	[]string{"status"},
)
