// Package metrics exports what the distribution engine does as Prometheus
// counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feed"

type Prometheus struct {
	deliveries *prometheus.CounterVec
	repairs    *prometheus.CounterVec
	mismatches *prometheus.CounterVec
	reads      *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Feed writes made by fan-outs, by operation and outcome.",
		}, []string{"op", "outcome"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Cold-start rebuilds, by feed kind and whether they found anything.",
		}, []string{"kind", "outcome"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_mismatches_total",
			Help:      "Unreadable cache entries that were discarded.",
		}, []string{"kind"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Feed reads, by where the answer came from.",
		}, []string{"source"}),
	}
	reg.MustRegister(p.deliveries, p.repairs, p.mismatches, p.reads)
	return p
}

func (p *Prometheus) FanOut(op string, recipients, failed int) {
	p.deliveries.WithLabelValues(op, "delivered").Add(float64(recipients - failed))
	p.deliveries.WithLabelValues(op, "failed").Add(float64(failed))
}

func (p *Prometheus) Repaired(kind string, entries int) {
	outcome := "filled"
	if entries == 0 {
		outcome = "empty"
	}
	p.repairs.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) CacheMismatch(kind string) {
	p.mismatches.WithLabelValues(kind).Inc()
}

func (p *Prometheus) Served(source string) {
	p.reads.WithLabelValues(source).Inc()
}
