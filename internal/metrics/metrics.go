// Package metrics exposes bot activity to Prometheus:
//
//	dca_decisions_total{check,outcome}  dca_check / tp_check evaluations
//	dca_orders_total{side}              filled orders
//	dca_tick_errors_total{kind}         ticks that failed evaluation
//	dca_autopilot_tier{tier}            active autopilot tier (1) vs inactive (0)
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

var tiers = []domain.TierName{domain.TierNone, domain.TierMedium, domain.TierHigh}

// Metrics holds the bot collectors.
type Metrics struct {
	registry   *prometheus.Registry
	decisions  *prometheus.CounterVec
	orders     *prometheus.CounterVec
	tickErrors *prometheus.CounterVec
	tier       *prometheus.GaugeVec
}

// New registers the collectors in a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_decisions_total",
			Help: "Decision evaluations by check and outcome",
		}, []string{"check", "outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_orders_total",
			Help: "Filled orders",
		}, []string{"side"}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_tick_errors_total",
			Help: "Ticks whose evaluation failed, by error kind",
		}, []string{"kind"}),
		tier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dca_autopilot_tier",
			Help: "Active autopilot tier as separate labeled series",
		}, []string{"tier"}),
	}

	m.registry.MustRegister(m.decisions, m.orders, m.tickErrors, m.tier,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Decision counts a dca_check or tp_check; fired is new_so or sell.
func (m *Metrics) Decision(check domain.DecisionType, fired bool) {
	m.decisions.WithLabelValues(string(check), strconv.FormatBool(fired)).Inc()
}

func (m *Metrics) OrderFilled(side domain.Side) {
	m.orders.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) TickError(kind string) {
	m.tickErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) AutopilotTier(active domain.TierName) {
	for _, t := range tiers {
		v := 0.0
		if t == active {
			v = 1
		}
		m.tier.WithLabelValues(string(t)).Set(v)
	}
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
