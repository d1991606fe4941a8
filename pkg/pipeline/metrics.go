package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "retail_voice"

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	requests      *prometheus.CounterVec
	cutoffs       prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Completed requests by intent and outcome",
			},
			[]string{"intent", "outcome"}, // outcome: ok, or a failure kind
		),
		cutoffs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patience_cutoffs_total",
				Help:      "Requests refused by the off-topic limiter",
			},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.stageDuration, m.requests, m.cutoffs} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

func (m *Metrics) observeRequest(s *State) {
	if m == nil {
		return
	}
	outcome := "ok"
	if s.Failure != nil {
		outcome = s.Failure.Kind.String()
	}
	m.requests.WithLabelValues(s.Intent.String(), outcome).Inc()
	if s.Cutoff {
		m.cutoffs.Inc()
	}
}
