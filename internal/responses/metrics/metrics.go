package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the responses module.
type Metrics struct {
	ResponsesSubmitted *prometheus.CounterVec
	ResponsesReviewed  *prometheus.CounterVec
	ResponsesArchived  prometheus.Counter
	SubmitDuration     prometheus.Histogram
}

// New creates a Metrics instance with all response module metrics registered.
func New() *Metrics {
	return &Metrics{
		ResponsesSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formhub_responses_submitted_total",
			Help: "Total number of responses submitted, by initial status",
		}, []string{"status"}),
		ResponsesReviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formhub_responses_reviewed_total",
			Help: "Total number of review decisions, by decision",
		}, []string{"decision"}),
		ResponsesArchived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formhub_responses_archived_total",
			Help: "Total number of responses archived",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formhub_response_submit_duration_seconds",
			Help:    "Duration of response submissions including gating checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementSubmitted records a stored submission.
func (m *Metrics) IncrementSubmitted(status string) {
	if m == nil {
		return
	}
	m.ResponsesSubmitted.WithLabelValues(status).Inc()
}

// IncrementReviewed records a review decision.
func (m *Metrics) IncrementReviewed(decision string) {
	if m == nil {
		return
	}
	m.ResponsesReviewed.WithLabelValues(decision).Inc()
}

// IncrementArchived records an archival.
func (m *Metrics) IncrementArchived() {
	if m == nil {
		return
	}
	m.ResponsesArchived.Inc()
}

// ObserveSubmit records the duration of a submission. Call with time.Now()
// from the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	if m == nil {
		return
	}
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}
