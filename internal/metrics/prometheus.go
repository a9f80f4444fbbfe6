package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scenepal"

// PrometheusBridge exposes a Collector snapshot as Prometheus metrics at
// scrape time.
type PrometheusBridge struct {
	source *Collector

	cycles        *prom.Desc
	misses        *prom.Desc
	persistErrors *prom.Desc
	matches       *prom.Desc
	outcomes      *prom.Desc
	entered       *prom.Desc
}

// NewPrometheusBridge wraps c.
func NewPrometheusBridge(c *Collector) *PrometheusBridge {
	return &PrometheusBridge{
		source:        c,
		cycles:        prom.NewDesc(prom.BuildFQName(namespace, "", "cycles_total"), "Poll cycles completed", nil, nil),
		misses:        prom.NewDesc(prom.BuildFQName(namespace, "", "observation_misses_total"), "Poll cycles without focus information", nil, nil),
		persistErrors: prom.NewDesc(prom.BuildFQName(namespace, "", "persist_errors_total"), "Failed scene file writes", nil, nil),
		matches:       prom.NewDesc(prom.BuildFQName(namespace, "", "matches_total"), "Rule matches by resolution stage", []string{"stage"}, nil),
		outcomes:      prom.NewDesc(prom.BuildFQName(namespace, "", "outcomes_total"), "State machine outcomes", []string{"outcome"}, nil),
		entered:       prom.NewDesc(prom.BuildFQName(namespace, "", "scene_entered_total"), "Scene changes by target scene", []string{"scene"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (b *PrometheusBridge) Describe(ch chan<- *prom.Desc) {
	ch <- b.cycles
	ch <- b.misses
	ch <- b.persistErrors
	ch <- b.matches
	ch <- b.outcomes
	ch <- b.entered
}

// Collect implements prometheus.Collector.
func (b *PrometheusBridge) Collect(ch chan<- prom.Metric) {
	snap := b.source.Snapshot()
	ch <- prom.MustNewConstMetric(b.cycles, prom.CounterValue, float64(snap.Cycles))
	ch <- prom.MustNewConstMetric(b.misses, prom.CounterValue, float64(snap.ObservationMisses))
	ch <- prom.MustNewConstMetric(b.persistErrors, prom.CounterValue, float64(snap.PersistErrors))
	for stage, n := range snap.Matches {
		ch <- prom.MustNewConstMetric(b.matches, prom.CounterValue, float64(n), stage)
	}
	for outcome, n := range snap.Outcomes {
		ch <- prom.MustNewConstMetric(b.outcomes, prom.CounterValue, float64(n), outcome)
	}
	for _, scene := range snap.Scenes {
		ch <- prom.MustNewConstMetric(b.entered, prom.CounterValue, float64(scene.Entered), scene.Scene)
	}
}

// Handler returns an HTTP handler serving c together with the Go runtime and
// process collectors.
func Handler(c *Collector) http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(
		NewPrometheusBridge(c),
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
