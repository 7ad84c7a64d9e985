package core

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"growpilot/internal/forecast"
	"growpilot/pkg/domain"
)

// HarvestRecord is a harvest log entry read back from its flat record.
type HarvestRecord struct {
	Plant string    `json:"plant"`
	Date  time.Time `json:"date"`
	Grams float64   `json:"grams"`
}

// DailyTotal is the grams harvested on one calendar date.
type DailyTotal struct {
	Date  time.Time `json:"date" yaml:"date"`
	Grams float64   `json:"grams" yaml:"grams"`
}

// ParseHarvest converts a harvest record to its typed form.
func ParseHarvest(rec domain.Record) (HarvestRecord, error) {
	plant, _ := rec.Get(domain.FieldPlant)
	rawDate, ok := rec.Get(domain.FieldDate)
	if !ok {
		return HarvestRecord{}, fmt.Errorf("harvest record missing %s", domain.FieldDate)
	}
	date, err := time.Parse(domain.DateLayout, rawDate)
	if err != nil {
		return HarvestRecord{}, fmt.Errorf("harvest date %q: %w", rawDate, err)
	}
	rawGrams, ok := rec.Get(domain.FieldGrams)
	if !ok {
		return HarvestRecord{}, fmt.Errorf("harvest record missing %s", domain.FieldGrams)
	}
	grams, err := strconv.ParseFloat(rawGrams, 64)
	if err != nil {
		return HarvestRecord{}, fmt.Errorf("harvest grams %q: %w", rawGrams, err)
	}
	return HarvestRecord{Plant: plant, Date: date, Grams: grams}, nil
}

// ParseHarvests converts every record, failing on the first malformed one.
func ParseHarvests(records []domain.Record) ([]HarvestRecord, error) {
	out := make([]HarvestRecord, 0, len(records))
	for i, rec := range records {
		h, err := ParseHarvest(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// DailyTotals sums grams per calendar date and returns the series in date
// order, with at most one entry per date.
func DailyTotals(harvests []HarvestRecord) []DailyTotal {
	sums := make(map[time.Time]float64)
	for _, h := range harvests {
		y, m, d := h.Date.Date()
		sums[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)] += h.Grams
	}
	out := make([]DailyTotal, 0, len(sums))
	for date, grams := range sums {
		out = append(out, DailyTotal{Date: date, Grams: grams})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// RegroupDailyTotals groups an existing daily series again.
func RegroupDailyTotals(series []DailyTotal) []DailyTotal {
	harvests := make([]HarvestRecord, len(series))
	for i, t := range series {
		harvests[i] = HarvestRecord{Date: t.Date, Grams: t.Grams}
	}
	return DailyTotals(harvests)
}

func observations(series []DailyTotal) []forecast.Observation {
	obs := make([]forecast.Observation, len(series))
	for i, t := range series {
		obs[i] = forecast.Observation{Date: t.Date, Grams: t.Grams}
	}
	return obs
}
