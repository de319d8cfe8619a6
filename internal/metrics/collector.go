// Package metrics turns event bus traffic into Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trendwatch/internal/eventbus"
)

type Collector struct {
	reg *prometheus.Registry

	cycles        *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	lastCycle     prometheus.Gauge
	lastChange    prometheus.Gauge
}

// New registers the collector's metrics, plus Go runtime and process
// metrics, on a private registry.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trendwatch",
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"outcome"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trendwatch",
			Name:      "fetch_failures_total",
			Help:      "Skipped cycles by failure kind.",
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trendwatch",
			Name:      "sends_total",
			Help:      "Channel deliveries by role and status.",
		}, []string{"role", "status"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trendwatch",
			Name:      "send_duration_seconds",
			Help:      "Channel delivery latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trendwatch",
			Name:      "last_cycle_duration_seconds",
			Help:      "Duration of the most recent cycle.",
		}),
		lastChange: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trendwatch",
			Name:      "last_change_timestamp_seconds",
			Help:      "Unix time of the most recent detected change.",
		}),
	}
	c.reg.MustRegister(
		c.cycles, c.fetchFailures, c.sends, c.sendDuration, c.lastCycle, c.lastChange,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Run consumes bus events until ctx ends.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	events, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Observe(ev)
		}
	}
}

// Observe applies one event.
func (c *Collector) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case eventbus.CycleData:
		c.cycles.WithLabelValues(strings.TrimPrefix(ev.Type, "cycle.")).Inc()
		c.lastCycle.Set(d.Took.Seconds())
		switch ev.Type {
		case eventbus.CycleFetchFailed:
			c.fetchFailures.WithLabelValues(d.FetchKind).Inc()
		case eventbus.CycleChanged:
			c.lastChange.Set(float64(ev.Time.Unix()))
		}
	case eventbus.DispatchData:
		status := "ok"
		if ev.Type == eventbus.DispatchFailed {
			status = "failed"
		}
		c.sends.WithLabelValues(d.Role, status).Inc()
		c.sendDuration.WithLabelValues(d.Role).Observe(d.Took.Seconds())
	}
}
