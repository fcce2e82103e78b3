// Package metrics provides Prometheus instrumentation for the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FeedMessages counts decoded feed messages by feed and kind.
	FeedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_feed_messages_total",
		Help: "Feed messages applied to market state",
	}, []string{"feed", "kind"})

	// FeedReconnects counts reconnect attempts per feed.
	FeedReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_feed_reconnects_total",
		Help: "Feed reconnect attempts",
	}, []string{"feed"})

	// EdgeChecks counts opportunity evaluations per strategy.
	EdgeChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_edge_checks_total",
		Help: "Fair value evaluations",
	}, []string{"strategy"})

	// EntryEdge records the edge of admitted entries.
	EntryEdge = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "updown_entry_edge",
		Help:    "Edge at entry time",
		Buckets: []float64{0.02, 0.04, 0.06, 0.08, 0.1, 0.15, 0.2, 0.3, 0.5},
	}, []string{"strategy"})

	// OrdersTotal counts submitted orders.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_orders_total",
		Help: "Orders submitted",
	}, []string{"side", "status"})

	// OrderLatency tracks order round-trip time.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "updown_order_latency_seconds",
		Help:    "Order submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// RiskRejects counts admission rejections by reason.
	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_risk_rejects_total",
		Help: "Risk gate rejections",
	}, []string{"reason"})

	// PositionsClosed counts exits by reason.
	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_positions_closed_total",
		Help: "Positions closed",
	}, []string{"strategy", "reason"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_open_positions",
		Help: "Open positions in the risk ledger",
	})

	TotalExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_total_exposure_usdc",
		Help: "Open notional across all strategies",
	})

	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_daily_pnl_usdc",
		Help: "Realized PnL since the UTC day start",
	})

	Halted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_halted",
		Help: "1 when new entries are halted",
	})

	JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_journal_writes_total",
		Help: "Journal writes by outcome (ok, error, dropped)",
	}, []string{"op", "outcome"})

	// WebSocketClients tracks connected status-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_websocket_clients",
		Help: "Connected status stream clients",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
