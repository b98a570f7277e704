// Package monitoring exposes order-flow metrics in Prometheus text format.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the counter/gauge set updated by the execution middleware and
// the analyzer.
type Metrics struct {
	registry *prometheus.Registry

	ordersTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	tradesClosed    prometheus.Counter
	feesTotal       *prometheus.CounterVec
	equity          prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btlab_orders_total",
				Help: "Orders submitted to the broker",
			},
			[]string{"side"},
		),
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btlab_order_rejections_total",
				Help: "Orders skipped by the execution middleware, by reason code",
			},
			[]string{"reason"},
		),
		tradesClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "btlab_trades_closed_total",
				Help: "Closed round-trip trades emitted by the analyzer",
			},
		),
		feesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btlab_fees_total",
				Help: "Accumulated simulated fees",
			},
			[]string{"leg"}, // in|out
		),
		equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "btlab_equity",
				Help: "Current simulated portfolio value",
			},
		),
	}
	m.registry.MustRegister(m.ordersTotal, m.rejectionsTotal, m.tradesClosed, m.feesTotal, m.equity)
	return m
}

func (m *Metrics) OrderSubmitted(side string)  { m.ordersTotal.WithLabelValues(side).Inc() }
func (m *Metrics) OrderRejected(reason string) { m.rejectionsTotal.WithLabelValues(reason).Inc() }
func (m *Metrics) TradeClosed()                { m.tradesClosed.Inc() }
func (m *Metrics) SetEquity(v float64)         { m.equity.Set(v) }

func (m *Metrics) AddFee(leg string, amount float64) {
	if amount > 0 {
		m.feesTotal.WithLabelValues(leg).Add(amount)
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
