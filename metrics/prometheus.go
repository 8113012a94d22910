// Package metrics exposes run outcomes as Prometheus collectors.
package metrics

import (
	"io"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const DefaultNamespace = "fxscript"

// Recorder implements the orchestrator's MetricsRecorder on Prometheus
// collectors labeled by script id.
type Recorder struct {
	gatherer prometheus.Gatherer

	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
}

type config struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry
}

type Option func(*config)

func WithNamespace(ns string) Option {
	return func(c *config) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithBuckets sets the run duration histogram buckets, in seconds.
func WithBuckets(b []float64) Option {
	return func(c *config) {
		if len(b) > 0 {
			c.buckets = b
		}
	}
}

// WithRegistry registers the collectors on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *config) {
		if r != nil {
			c.registry = r
		}
	}
}

// NewRecorder creates and registers the collectors.
func NewRecorder(opts ...Option) (*Recorder, error) {
	cfg := config{
		namespace: DefaultNamespace,
		buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	r := &Recorder{
		gatherer: cfg.registry,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "run_duration_seconds",
			Help:      "Script run duration in seconds.",
			Buckets:   cfg.buckets,
		}, []string{"script"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "runs_total",
			Help:      "Finished script runs by outcome.",
		}, []string{"script", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "run_failures_total",
			Help:      "Script runs that ended with an error.",
		}, []string{"script"}),
	}

	for _, c := range []prometheus.Collector{r.duration, r.runs, r.failures} {
		if err := cfg.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, errors.CategoryConflict, "register fxscript metrics")
		}
	}
	return r, nil
}

func (r *Recorder) RecordDuration(name string, d time.Duration) {
	r.duration.WithLabelValues(name).Observe(d.Seconds())
}

func (r *Recorder) RecordError(name string) {
	r.runs.WithLabelValues(name, "error").Inc()
	r.failures.WithLabelValues(name).Inc()
}

func (r *Recorder) RecordSuccess(name string) {
	r.runs.WithLabelValues(name, "success").Inc()
}

// Gatherer returns the registry the collectors live in, for serving.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

// WriteText writes every gathered metric in the Prometheus text format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.gatherer.Gather()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "gather metrics")
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return errors.Wrap(err, errors.CategoryExternal, "encode metrics")
		}
	}
	return nil
}
