// Package forecast fits a least-squares trend line to daily harvest totals and
// extrapolates it a fixed number of days past the last observation.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultHorizon is the number of future days predicted.
const DefaultHorizon = 14

// ErrEmptySeries is returned when no observations are supplied. Callers are
// expected to check for data before asking for a forecast.
var ErrEmptySeries = errors.New("forecast: empty series")

// Observation is one (date, grams) input pair.
type Observation struct {
	Date  time.Time
	Grams float64
}

// Point is a predicted value for a future calendar day.
type Point struct {
	Date   time.Time `json:"date" yaml:"date"`
	Offset int       `json:"offset" yaml:"offset"`
	Grams  float64   `json:"grams" yaml:"grams"`
}

// Line is grams = Slope*days + Intercept.
type Line struct {
	Slope     float64 `json:"slope" yaml:"slope"`
	Intercept float64 `json:"intercept" yaml:"intercept"`
}

// Predict evaluates the line at x days since start.
func (l Line) Predict(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// RSS returns the residual sum of squares of the line over (xs, ys).
func (l Line) RSS(xs, ys []float64) float64 {
	var sum float64
	for i := range xs {
		r := ys[i] - l.Predict(xs[i])
		sum += r * r
	}
	return sum
}

// Fit is a fitted trend over a series.
type Fit struct {
	Line
	// Start is the earliest observed date; day offsets are relative to it.
	Start time.Time `json:"start" yaml:"start"`
	// Days and Grams are the regression inputs sorted by date.
	Days  []float64 `json:"days" yaml:"days"`
	Grams []float64 `json:"grams" yaml:"grams"`
	// LastDay is max(Days).
	LastDay int `json:"last_day" yaml:"last_day"`
	// Degenerate is set when all observations fall on one day and the
	// slope is fixed at zero.
	Degenerate bool `json:"degenerate" yaml:"degenerate"`
}

// Result bundles a fit with its extrapolated points.
type Result struct {
	Fit    Fit     `json:"fit" yaml:"fit"`
	Points []Point `json:"points" yaml:"points"`
}

// Engine produces forecasts. The zero value uses DefaultHorizon.
type Engine struct {
	Horizon int
	// ClampAtZero floors predictions at 0. Off by default: the fitted line is
	// unconstrained and negative values are reported as-is.
	ClampAtZero bool
}

// New returns an engine with the given horizon; non-positive values fall back
// to DefaultHorizon.
func New(horizon int) *Engine {
	return &Engine{Horizon: horizon}
}

func (e *Engine) horizon() int {
	if e == nil || e.Horizon <= 0 {
		return DefaultHorizon
	}
	return e.Horizon
}

// Fit computes the ordinary least-squares line through the observations.
func (e *Engine) Fit(obs []Observation) (Fit, error) {
	if len(obs) == 0 {
		return Fit{}, ErrEmptySeries
	}
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return civilDay(sorted[i].Date).Before(civilDay(sorted[j].Date))
	})

	start := civilDay(sorted[0].Date)
	fit := Fit{
		Start: start,
		Days:  make([]float64, len(sorted)),
		Grams: make([]float64, len(sorted)),
	}
	for i, o := range sorted {
		if math.IsNaN(o.Grams) || math.IsInf(o.Grams, 0) {
			return Fit{}, fmt.Errorf("forecast: observation %d has non-finite grams", i)
		}
		d := daysBetween(start, o.Date)
		fit.Days[i] = float64(d)
		fit.Grams[i] = o.Grams
		if d > fit.LastDay {
			fit.LastDay = d
		}
	}

	if fit.LastDay == 0 {
		// One distinct day: OLS slope is undefined, predict the mean.
		fit.Degenerate = true
		fit.Line = Line{Slope: 0, Intercept: stat.Mean(fit.Grams, nil)}
		return fit, nil
	}
	alpha, beta := stat.LinearRegression(fit.Days, fit.Grams, nil, false)
	fit.Line = Line{Slope: beta, Intercept: alpha}
	return fit, nil
}

// Forecast fits the observations and evaluates the line for each of the next
// Horizon days after the last observed date.
func (e *Engine) Forecast(obs []Observation) (Result, error) {
	fit, err := e.Fit(obs)
	if err != nil {
		return Result{}, err
	}
	h := e.horizon()
	points := make([]Point, 0, h)
	for offset := fit.LastDay + 1; offset <= fit.LastDay+h; offset++ {
		v := fit.Predict(float64(offset))
		if e != nil && e.ClampAtZero && v < 0 {
			v = 0
		}
		points = append(points, Point{
			Date:   fit.Start.AddDate(0, 0, offset),
			Offset: offset,
			Grams:  v,
		})
	}
	return Result{Fit: fit, Points: points}, nil
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const secondsPerDay = 24 * 60 * 60

// daysBetween counts whole civil days from start. It works on Unix seconds
// because time.Duration saturates after roughly 292 years.
func daysBetween(start, t time.Time) int {
	return int((civilDay(t).Unix() - start.Unix()) / secondsPerDay)
}
