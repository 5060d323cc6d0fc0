// Package metrics exposes factory progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foobartory.ai/internal/sim/factory"
)

// Metrics is a factory.TickLogger that mirrors every tick report into
// gauges and counts robot events.
type Metrics struct {
	registry *prometheus.Registry

	Tick     prometheus.Gauge
	Stock    *prometheus.GaugeVec
	Money    prometheus.Gauge
	Robots   prometheus.Gauge
	Finished prometheus.Gauge
	Events   *prometheus.CounterVec
	Assembly *prometheus.CounterVec
}

// New creates a private registry with the Go and process collectors and the
// factory metrics registered on it.
func New(runID string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	labels := prometheus.Labels{"run": runID}
	m := &Metrics{
		registry: reg,
		Tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "foobartory_tick",
			Help:        "Last simulated tick.",
			ConstLabels: labels,
		}),
		Stock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "foobartory_stock",
			Help:        "Items waiting in the shared pools by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		Money: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "foobartory_money",
			Help:        "Current money balance.",
			ConstLabels: labels,
		}),
		Robots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "foobartory_robots",
			Help:        "Robots in the fleet.",
			ConstLabels: labels,
		}),
		Finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "foobartory_run_finished",
			Help:        "1 once the run has terminated.",
			ConstLabels: labels,
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "foobartory_robot_events_total",
			Help:        "Robot events by type.",
			ConstLabels: labels,
		}, []string{"type"}),
		Assembly: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "foobartory_assembly_total",
			Help:        "Completed foobar assemblies by result.",
			ConstLabels: labels,
		}, []string{"result"}),
	}
	reg.MustRegister(m.Tick, m.Stock, m.Money, m.Robots, m.Finished, m.Events, m.Assembly)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) WriteTick(e factory.TickLogEntry) error {
	r := e.Report
	m.Tick.Set(float64(r.Tick))
	m.Stock.WithLabelValues("foo").Set(float64(r.Foo))
	m.Stock.WithLabelValues("bar").Set(float64(r.Bar))
	m.Stock.WithLabelValues("foobar").Set(float64(r.FooBars))
	m.Money.Set(float64(r.Money))
	m.Robots.Set(float64(r.Robots))
	if e.Final {
		m.Finished.Set(1)
		return nil
	}
	for _, ev := range e.Events {
		m.Events.WithLabelValues(ev.Type).Inc()
		if ev.Type == "COMPLETED" && (ev.Detail == "success" || ev.Detail == "failure") {
			m.Assembly.WithLabelValues(ev.Detail).Inc()
		}
	}
	return nil
}
