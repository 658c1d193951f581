package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts tier attempts and served searches on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	tierAttempts   *prometheus.CounterVec
	searches       *prometheus.CounterVec
	quotaRemaining prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gsearch_tier_attempts_total",
			Help: "Provider tier attempts by tier and outcome",
		}, []string{"tier", "outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gsearch_searches_total",
			Help: "Completed searches by the tier that served them",
		}, []string{"source"}),
		quotaRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gsearch_quota_remaining",
			Help: "Primary tier queries left in the current daily window",
		}),
	}
	r.registry.MustRegister(r.tierAttempts, r.searches, r.quotaRemaining)
	return r
}

func (r *Recorder) TierAttempt(tier, outcome string) {
	if r == nil {
		return
	}
	r.tierAttempts.WithLabelValues(tier, outcome).Inc()
}

func (r *Recorder) Served(source string) {
	if r == nil {
		return
	}
	r.searches.WithLabelValues(source).Inc()
}

func (r *Recorder) QuotaRemaining(n int) {
	if r == nil {
		return
	}
	r.quotaRemaining.Set(float64(n))
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format, suitable for
// the node exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
