package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/genguard/validation"
)

// Metrics records orchestration counters. A nil *Metrics is a no-op.
type Metrics struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	scores   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genguard",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Generation attempts by validation result.",
		}, []string{"valid"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genguard",
			Subsystem: "retry",
			Name:      "outcomes_total",
			Help:      "Finished runs by terminal state.",
		}, []string{"state"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genguard",
			Subsystem: "retry",
			Name:      "score",
			Help:      "Validation score of each attempt by score kind.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.outcomes, m.scores)
	}
	return m
}

// AttemptsCounter exposes the attempts counter vec.
func (m *Metrics) AttemptsCounter() *prometheus.CounterVec { return m.attempts }

// OutcomesCounter exposes the outcomes counter vec.
func (m *Metrics) OutcomesCounter() *prometheus.CounterVec { return m.outcomes }

func (m *Metrics) observeAttempt(r *validation.Result) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(strconv.FormatBool(r.Valid())).Inc()
	if r.ScoreKind != validation.ScoreNone {
		m.scores.WithLabelValues(string(r.ScoreKind)).Observe(r.Score)
	}
}

func (m *Metrics) observeOutcome(s State) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(s)).Inc()
}
