// Package insights computes response rollups for form dashboards: totals,
// review breakdowns and submission trends.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	formmodels "formhub/internal/forms/models"
	formstore "formhub/internal/forms/store"
	"formhub/internal/responses/models"
	"formhub/internal/responses/store"
	"formhub/pkg/outcome"
)

type FormReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*formmodels.Form, error)
}

type CollaboratorReader interface {
	RoleOf(ctx context.Context, formID, userID uuid.UUID) (formmodels.Role, error)
}

type ResponseLister interface {
	ListByForm(ctx context.Context, formID uuid.UUID, filter store.ListFilter) ([]models.Response, error)
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service computes dashboard rollups.
type Service struct {
	forms     FormReader
	collabs   CollaboratorReader
	responses ResponseLister

	logger *slog.Logger
	clock  Clock
	tracer trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a Service.
func New(forms FormReader, collabs CollaboratorReader, responses ResponseLister, opts ...Option) *Service {
	s := &Service{
		forms:     forms,
		collabs:   collabs,
		responses: responses,
		logger:    slog.Default(),
		clock:     time.Now,
		tracer:    otel.Tracer("formhub/insights"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TrendPoint is one bucket of a submission trend.
type TrendPoint struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FormMetricsView is the dashboard rollup for one form. Daily trend buckets
// are keyed d-0 (today) through d-6; hourly buckets h-0 through h-23. Both
// are zero-filled so charts never interpolate over gaps.
type FormMetricsView struct {
	FormID              uuid.UUID                     `json:"formId"`
	Total               int                           `json:"total"`
	ByStatus            map[models.ResponseStatus]int `json:"byStatus"`
	Registered          int                           `json:"registered"`
	Anonymous           int                           `json:"anonymous"`
	AverageTimeSpentSec *float64                      `json:"averageTimeSpentSec,omitempty"`
	DailyTrend          []TrendPoint                  `json:"dailyTrend"`
	HourlyTrend         []TrendPoint                  `json:"hourlyTrend"`
}

// trendDays is the daily trend window.
const trendDays = 7

// FormMetrics computes the rollup over a form's live responses. Collaborators
// only.
func (s *Service) FormMetrics(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[*FormMetricsView], error) {
	ctx, span := s.tracer.Start(ctx, "insights.FormMetrics",
		trace.WithAttributes(attribute.String("form.id", formID.String())))
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[*FormMetricsView](outcome.Unauthorized, "authentication required"), nil
	}
	if _, err := s.forms.FindByID(ctx, formID); err != nil {
		if errors.Is(err, formstore.ErrNotFound) {
			return outcome.Fail[*FormMetricsView](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[*FormMetricsView]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, formID, userID)
	if err != nil {
		return outcome.Result[*FormMetricsView]{}, err
	}
	if !role.CanView() {
		return outcome.Fail[*FormMetricsView](outcome.NotAuthorized, "not a collaborator on this form"), nil
	}

	responses, err := s.responses.ListByForm(ctx, formID, store.ListFilter{})
	if err != nil {
		return outcome.Result[*FormMetricsView]{}, err
	}

	view := s.rollup(formID, responses)
	span.SetAttributes(attribute.Int("insights.total", view.Total))
	return outcome.Of(outcome.Available, view), nil
}

func (s *Service) rollup(formID uuid.UUID, responses []models.Response) *FormMetricsView {
	now := s.clock().UTC()
	today := now.Truncate(24 * time.Hour)

	view := &FormMetricsView{
		FormID:   formID,
		Total:    len(responses),
		ByStatus: make(map[models.ResponseStatus]int, 4),
	}

	daily := make([]int, trendDays)
	hourly := make([]int, 24)
	var spentTotal, spentCount int
	for i := range responses {
		r := &responses[i]
		view.ByStatus[r.Status]++
		if r.UserID != nil {
			view.Registered++
		} else {
			view.Anonymous++
		}
		if r.TimeSpentSec != nil {
			spentTotal += *r.TimeSpentSec
			spentCount++
		}

		submitted := r.SubmittedAt.UTC()
		hourly[submitted.Hour()]++
		daysAgo := int(today.Sub(submitted.Truncate(24 * time.Hour)).Hours() / 24)
		if daysAgo >= 0 && daysAgo < trendDays {
			daily[daysAgo]++
		}
	}
	if spentCount > 0 {
		avg := float64(spentTotal) / float64(spentCount)
		view.AverageTimeSpentSec = &avg
	}

	view.DailyTrend = make([]TrendPoint, trendDays)
	for daysAgo := 0; daysAgo < trendDays; daysAgo++ {
		day := today.AddDate(0, 0, -daysAgo)
		view.DailyTrend[daysAgo] = TrendPoint{
			Key:   fmt.Sprintf("d-%d", daysAgo),
			Label: day.Weekday().String(),
			Count: daily[daysAgo],
		}
	}
	view.HourlyTrend = make([]TrendPoint, 24)
	for hour := 0; hour < 24; hour++ {
		view.HourlyTrend[hour] = TrendPoint{
			Key:   fmt.Sprintf("h-%d", hour),
			Label: fmt.Sprintf("%02d:00", hour),
			Count: hourly[hour],
		}
	}
	return view
}
