// Package chart renders harvest charts as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"growpilot/internal/core"
	"growpilot/internal/forecast"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("chart: no data")

// Size is the rendered image size.
type Size struct {
	Width, Height vg.Length
}

// DefaultSize fits the dashboard column.
var DefaultSize = Size{Width: 16 * vg.Centimeter, Height: 9 * vg.Centimeter}

var (
	actualColor   = color.RGBA{R: 46, G: 125, B: 50, A: 255}
	forecastColor = color.RGBA{R: 239, G: 108, B: 0, A: 255}
)

// DailyTotals draws grams harvested per day.
func DailyTotals(series []core.DailyTotal, size Size) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoData
	}
	p := newPlot("Harvest Summary")
	line, points, err := plotter.NewLinePoints(totalsXY(series))
	if err != nil {
		return nil, fmt.Errorf("daily totals line: %w", err)
	}
	styleActual(line, points)
	p.Add(line, points)
	return render(p, size)
}

// Forecast overlays the forecast points, drawn dashed, on the actual series.
func Forecast(series []core.DailyTotal, predicted []forecast.Point, size Size) ([]byte, error) {
	if len(series) == 0 && len(predicted) == 0 {
		return nil, ErrNoData
	}
	p := newPlot("Forecasted Yield")
	if len(series) > 0 {
		line, points, err := plotter.NewLinePoints(totalsXY(series))
		if err != nil {
			return nil, fmt.Errorf("actual line: %w", err)
		}
		styleActual(line, points)
		p.Add(line, points)
		p.Legend.Add("Actual", line, points)
	}
	if len(predicted) > 0 {
		xys := make(plotter.XYs, len(predicted))
		for i, pt := range predicted {
			xys[i] = plotter.XY{X: unixDay(pt.Date), Y: pt.Grams}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("forecast line: %w", err)
		}
		line.LineStyle.Color = forecastColor
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		p.Add(line)
		p.Legend.Add("Forecast", line)
	}
	p.Legend.Top = true
	return render(p, size)
}

func newPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Grams"
	p.X.Tick.Marker = plot.TimeTicks{Format: "Jan 02"}
	p.Add(plotter.NewGrid())
	return p
}

func styleActual(line *plotter.Line, points *plotter.Scatter) {
	line.LineStyle.Color = actualColor
	line.LineStyle.Width = vg.Points(1.5)
	points.GlyphStyle.Color = actualColor
	points.GlyphStyle.Shape = draw.CircleGlyph{}
	points.GlyphStyle.Radius = vg.Points(2.5)
}

func totalsXY(series []core.DailyTotal) plotter.XYs {
	xys := make(plotter.XYs, len(series))
	for i, t := range series {
		xys[i] = plotter.XY{X: unixDay(t.Date), Y: t.Grams}
	}
	return xys
}

func unixDay(t time.Time) float64 {
	y, m, d := t.Date()
	return float64(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix())
}

func render(p *plot.Plot, size Size) ([]byte, error) {
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultSize
	}
	w, err := p.WriterTo(size.Width, size.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
