package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"growpilot/internal/forecast"
	"growpilot/pkg/domain"
)

// Service applies form actions to a session's record store and computes the
// dashboard. It holds no records itself: every call receives the store of the
// session it acts on.
type Service struct {
	engine  *forecast.Engine
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// NewService constructs a service.
func NewService(opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		engine:  forecast.New(o.horizon),
		clock:   o.clock,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		audit:   o.audit,
	}
}

// Horizon returns the number of days forecast.
func (s *Service) Horizon() int {
	if s.engine.Horizon <= 0 {
		return forecast.DefaultHorizon
	}
	return s.engine.Horizon
}

// Today returns the service clock's current date.
func (s *Service) Today() time.Time {
	y, m, d := s.clock.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) run(ctx context.Context, op string, category domain.Category, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	entry := AuditEntry{
		Operation:  op,
		Category:   string(category),
		Status:     AuditStatusSuccess,
		Duration:   elapsed,
		OccurredAt: start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		if errors.Is(err, ErrValidation) {
			s.logger.Info("operation rejected", "operation", op, "category", category, "reason", err.Error())
		} else {
			s.logger.Error("operation failed", "operation", op, "category", category, "error", err)
		}
	} else {
		s.logger.Debug("operation completed", "operation", op, "category", category, "duration", elapsed)
	}
	s.audit.Record(ctx, entry)
	return err
}

// Apply validates the action, converts it to a record, and appends it to the
// matching log. The appended record is returned.
func (s *Service) Apply(ctx context.Context, store domain.RecordStore, action Action) (domain.Record, error) {
	if action == nil {
		return nil, fmt.Errorf("%w: no action", ErrValidation)
	}
	var rec domain.Record
	op := strings.ReplaceAll(string(action.Page()), "-", "_")
	err := s.run(ctx, op, action.Category(), func(ctx context.Context) error {
		var err error
		rec, err = s.toRecord(ctx, store, action)
		if err != nil {
			return err
		}
		return store.Append(ctx, action.Category(), rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) toRecord(ctx context.Context, store domain.RecordStore, action Action) (domain.Record, error) {
	switch a := action.(type) {
	case AddPlant:
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: plant name is required", ErrValidation)
		}
		return domain.Record{
			{Name: domain.FieldName, Value: name},
			{Name: domain.FieldDatePlanted, Value: formatDate(s.dateOrToday(a.DatePlanted))},
		}, nil
	case LogWatering:
		plant, err := s.resolvePlant(ctx, store, a.Plant)
		if err != nil {
			return nil, err
		}
		if err := checkAmount(domain.FieldLiters, a.Liters); err != nil {
			return nil, err
		}
		return domain.Record{
			{Name: domain.FieldPlant, Value: plant},
			{Name: domain.FieldDate, Value: formatDate(s.dateOrToday(a.Date))},
			{Name: domain.FieldLiters, Value: formatAmount(a.Liters)},
		}, nil
	case LogNutrients:
		plant, err := s.resolvePlant(ctx, store, a.Plant)
		if err != nil {
			return nil, err
		}
		return domain.Record{
			{Name: domain.FieldPlant, Value: plant},
			{Name: domain.FieldDate, Value: formatDate(s.dateOrToday(a.Date))},
			{Name: domain.FieldProduct, Value: strings.TrimSpace(a.Product)},
			{Name: domain.FieldNotes, Value: a.Notes},
		}, nil
	case LogHarvest:
		plant, err := s.resolvePlant(ctx, store, a.Plant)
		if err != nil {
			return nil, err
		}
		if err := checkAmount(domain.FieldGrams, a.Grams); err != nil {
			return nil, err
		}
		return domain.Record{
			{Name: domain.FieldPlant, Value: plant},
			{Name: domain.FieldDate, Value: formatDate(s.dateOrToday(a.Date))},
			{Name: domain.FieldGrams, Value: formatAmount(a.Grams)},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported action %T", action)
	}
}

func (s *Service) dateOrToday(t time.Time) time.Time {
	if t.IsZero() {
		return s.Today()
	}
	return t
}

func (s *Service) resolvePlant(ctx context.Context, store domain.RecordStore, name string) (string, error) {
	names, err := plantNames(ctx, store)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %w", ErrValidation, ErrNoPlants)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: select a plant", ErrValidation)
	}
	for _, n := range names {
		if n == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownPlant, name)
}

// PlantNames lists plant names in planting order, without duplicates.
func (s *Service) PlantNames(ctx context.Context, store domain.RecordStore) ([]string, error) {
	return plantNames(ctx, store)
}

func plantNames(ctx context.Context, store domain.RecordStore) ([]string, error) {
	plants, err := store.Records(ctx, domain.CategoryPlants)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(plants))
	names := make([]string, 0, len(plants))
	for _, p := range plants {
		name, ok := p.Get(domain.FieldName)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Table returns all records of a category in tabular form.
func (s *Service) Table(ctx context.Context, store domain.RecordStore, category domain.Category) (domain.Table, error) {
	var table domain.Table
	err := s.run(ctx, "table", category, func(ctx context.Context) error {
		if !category.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
		}
		var err error
		table, err = store.AsTable(ctx, category)
		return err
	})
	return table, err
}

// ForecastSummary is the dashboard view of a forecast.
type ForecastSummary struct {
	Horizon    int              `json:"horizon" yaml:"horizon"`
	Slope      float64          `json:"slope" yaml:"slope"`
	Intercept  float64          `json:"intercept" yaml:"intercept"`
	Degenerate bool             `json:"degenerate" yaml:"degenerate"`
	Start      time.Time        `json:"start" yaml:"start"`
	Points     []forecast.Point `json:"points" yaml:"points"`
}

// Dashboard is the harvest summary shown on the landing page.
type Dashboard struct {
	Counts      map[domain.Category]int `json:"counts" yaml:"counts"`
	HasHarvests bool                    `json:"has_harvests" yaml:"has_harvests"`
	DailyTotals []DailyTotal            `json:"daily_totals" yaml:"daily_totals"`
	Forecast    *ForecastSummary        `json:"forecast,omitempty" yaml:"forecast,omitempty"`
}

// Dashboard groups the harvest log by date and, when at least one harvest
// exists, forecasts the daily totals.
func (s *Service) Dashboard(ctx context.Context, store domain.RecordStore) (Dashboard, error) {
	var dash Dashboard
	err := s.run(ctx, "dashboard", domain.CategoryHarvests, func(ctx context.Context) error {
		counts, err := store.Counts(ctx)
		if err != nil {
			return err
		}
		records, err := store.Records(ctx, domain.CategoryHarvests)
		if err != nil {
			return err
		}
		harvests, err := ParseHarvests(records)
		if err != nil {
			return err
		}
		dash = Dashboard{Counts: counts, DailyTotals: DailyTotals(harvests)}
		if len(dash.DailyTotals) == 0 {
			return nil
		}
		dash.HasHarvests = true
		dash.Forecast, err = s.forecast(dash.DailyTotals)
		return err
	})
	return dash, err
}

// Forecast predicts the next Horizon days of a daily series. The series must
// not be empty.
func (s *Service) Forecast(ctx context.Context, series []DailyTotal) (*ForecastSummary, error) {
	var summary *ForecastSummary
	err := s.run(ctx, "forecast", domain.CategoryHarvests, func(context.Context) error {
		var err error
		summary, err = s.forecast(series)
		return err
	})
	return summary, err
}

func (s *Service) forecast(series []DailyTotal) (*ForecastSummary, error) {
	res, err := s.engine.Forecast(observations(series))
	if err != nil {
		return nil, err
	}
	return &ForecastSummary{
		Horizon:    len(res.Points),
		Slope:      res.Fit.Slope,
		Intercept:  res.Fit.Intercept,
		Degenerate: res.Fit.Degenerate,
		Start:      res.Fit.Start,
		Points:     res.Points,
	}, nil
}
