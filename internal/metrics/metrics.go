// Package metrics exposes order flow counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradesim"

// Metrics owns its registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	orders          *prometheus.CounterVec
	rejects         *prometheus.CounterVec
	trades          prometheus.Counter
	tradedQty       prometheus.Counter
	cancels         *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	connections     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		orders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Accepted orders by type and side",
		}, []string{"type", "side"}),
		rejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "Rejected requests by reason",
		}, []string{"reason"}),
		trades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed trades",
		}),
		tradedQty: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_qty_total",
			Help:      "Executed quantity",
		}),
		cancels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Cancel requests by result",
		}, []string{"result"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent handling one command",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 4, 10),
		}, []string{"command"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open TCP sessions",
		}),
	}
}

// OrderAccepted counts an accepted order and the trades it produced.
func (m *Metrics) OrderAccepted(orderType string, side match.Side, trades []match.Trade) {
	m.orders.WithLabelValues(orderType, side.String()).Inc()
	m.TradesExecuted(trades)
}

// TradesExecuted counts trades and their quantity.
func (m *Metrics) TradesExecuted(trades []match.Trade) {
	if len(trades) == 0 {
		return
	}
	var qty match.Qty
	for i := range trades {
		qty += trades[i].Qty
	}
	m.trades.Add(float64(len(trades)))
	m.tradedQty.Add(float64(qty))
}

func (m *Metrics) Rejected(reason string) {
	m.rejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) Cancelled(ok bool) {
	result := "not_found"
	if ok {
		result = "cancelled"
	}
	m.cancels.WithLabelValues(result).Inc()
}

// ObserveCommand records how long a command took since start.
func (m *Metrics) ObserveCommand(command string, start time.Time) {
	m.commandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ConnectionOpened() { m.connections.Inc() }
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
