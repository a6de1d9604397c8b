package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FormMetrics exposes counters/histograms for form sessions. A nil
// *FormMetrics is valid and records nothing.
type FormMetrics struct {
	stepTransitions    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	staleResponses     *prometheus.CounterVec
	slotFetchLatency   *prometheus.HistogramVec
	omittedSlots       prometheus.Counter
	submissions        *prometheus.CounterVec
}

// NewFormMetrics registers the collectors on reg, or on the default
// registerer when reg is nil.
func NewFormMetrics(reg prometheus.Registerer) *FormMetrics {
	m := &FormMetrics{
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicform",
			Subsystem: "runtime",
			Name:      "step_transitions_total",
			Help:      "Step navigation attempts by direction and outcome",
		}, []string{"direction", "outcome"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicform",
			Subsystem: "runtime",
			Name:      "validation_failures_total",
			Help:      "Required visible fields found empty, by field type",
		}, []string{"field_type"}),
		staleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicform",
			Subsystem: "runtime",
			Name:      "stale_responses_total",
			Help:      "Async responses dropped because a newer request superseded them",
		}, []string{"operation"}),
		slotFetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicform",
			Subsystem: "schedule",
			Name:      "slot_fetch_seconds",
			Help:      "Latency of available-slot queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		omittedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicform",
			Subsystem: "schedule",
			Name:      "omitted_slots_total",
			Help:      "Slots dropped because their wall-clock time does not exist in the practitioner zone",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicform",
			Subsystem: "runtime",
			Name:      "submissions_total",
			Help:      "Submission attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.stepTransitions,
		m.validationFailures,
		m.staleResponses,
		m.slotFetchLatency,
		m.omittedSlots,
		m.submissions,
	)
	return m
}

func (m *FormMetrics) ObserveStep(direction string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "blocked"
	}
	m.stepTransitions.WithLabelValues(direction, outcome).Inc()
}

func (m *FormMetrics) ObserveValidationFailure(fieldType string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(fieldType).Inc()
}

func (m *FormMetrics) ObserveStale(operation string) {
	if m == nil {
		return
	}
	m.staleResponses.WithLabelValues(operation).Inc()
}

func (m *FormMetrics) ObserveSlotFetch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.slotFetchLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *FormMetrics) ObserveOmittedSlot() {
	if m == nil {
		return
	}
	m.omittedSlots.Inc()
}

func (m *FormMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}
