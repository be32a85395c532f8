package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the forms module.
type Metrics struct {
	FormsCreated    prometheus.Counter
	FormsLinked     prometheus.Counter
	FormsUnlinked   prometheus.Counter
	UpsertDuration  prometheus.Histogram
	DisplayDuration prometheus.Histogram
	DisplayOutcome  *prometheus.CounterVec
}

// New creates a Metrics instance with all forms module metrics registered.
func New() *Metrics {
	return &Metrics{
		FormsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formhub_forms_created_total",
			Help: "Total number of forms created",
		}),
		FormsLinked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formhub_forms_linked_total",
			Help: "Total number of parent to child links established",
		}),
		FormsUnlinked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formhub_forms_unlinked_total",
			Help: "Total number of links removed",
		}),
		UpsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formhub_form_upsert_duration_seconds",
			Help:    "Duration of form upsert operations including child propagation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		DisplayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formhub_form_display_duration_seconds",
			Help:    "Duration of display state resolution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		DisplayOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formhub_form_display_outcomes_total",
			Help: "Display state machine results by outcome status",
		}, []string{"status"}),
	}
}

// IncrementFormsCreated records a successful form creation.
func (m *Metrics) IncrementFormsCreated() {
	if m == nil {
		return
	}
	m.FormsCreated.Inc()
}

// IncrementFormsLinked records an established link.
func (m *Metrics) IncrementFormsLinked() {
	if m == nil {
		return
	}
	m.FormsLinked.Inc()
}

// IncrementFormsUnlinked records a removed link.
func (m *Metrics) IncrementFormsUnlinked() {
	if m == nil {
		return
	}
	m.FormsUnlinked.Inc()
}

// ObserveUpsert records the duration of an upsert. Call with time.Now() from
// the start of the operation.
func (m *Metrics) ObserveUpsert(start time.Time) {
	if m == nil {
		return
	}
	m.UpsertDuration.Observe(time.Since(start).Seconds())
}

// ObserveDisplay records the duration and outcome of a display resolution.
func (m *Metrics) ObserveDisplay(start time.Time, status string) {
	if m == nil {
		return
	}
	m.DisplayDuration.Observe(time.Since(start).Seconds())
	m.DisplayOutcome.WithLabelValues(status).Inc()
}
