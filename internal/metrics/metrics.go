// Package metrics exports connectivity and request counters for host runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajanata/wifistation/internal/fetch"
	"github.com/ajanata/wifistation/internal/supervisor"
)

type Metrics struct {
	transitions     *prometheus.CounterVec
	connectFailures *prometheus.CounterVec
	readySeconds    prometheus.Histogram
	outcomes        *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervisor_transitions_total",
			Help: "Connectivity supervisor state transitions.",
		}, []string{"from", "to"}),
		connectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervisor_failures_total",
			Help: "Radio operations that failed and were retried.",
		}, []string{"op"}),
		readySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netstack_ready_seconds",
			Help:    "Time from boot until link and address were both available.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_outcomes_total",
			Help: "Request attempts by outcome.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.connectFailures, m.readySeconds, m.outcomes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attach hooks s into the transition and failure counters.
func (m *Metrics) Attach(s *supervisor.Supervisor) {
	s.OnStateChange(func(from, to supervisor.State) {
		m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	})
	s.OnFailure(func(op string, _ error) {
		m.connectFailures.WithLabelValues(op).Inc()
	})
}

func (m *Metrics) Ready(d time.Duration) {
	m.readySeconds.Observe(d.Seconds())
}

func (m *Metrics) Outcome(o fetch.Outcome) {
	m.outcomes.WithLabelValues(o.Kind.String()).Inc()
}
