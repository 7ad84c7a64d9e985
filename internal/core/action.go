package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"growpilot/pkg/domain"
)

// Sentinel errors surfaced to the user as recoverable form messages.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNoPlants     = errors.New("add a plant before logging activity")
	ErrUnknownPlant = errors.New("plant not found")
)

// Page names a screen of the application.
type Page string

const (
	PageDashboard    Page = "dashboard"
	PageAddPlant     Page = "add-plant"
	PageLogWatering  Page = "log-watering"
	PageLogNutrients Page = "log-nutrients"
	PageLogHarvest   Page = "log-harvest"
	PageExport       Page = "export"
)

// Pages lists every page in navigation order.
func Pages() []Page {
	return []Page{PageDashboard, PageAddPlant, PageLogWatering, PageLogNutrients, PageLogHarvest, PageExport}
}

// ParsePage resolves a page name.
func ParsePage(name string) (Page, error) {
	p := Page(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Pages() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown page %q", name)
}

// Title is the navigation label of the page.
func (p Page) Title() string {
	switch p {
	case PageDashboard:
		return "Dashboard"
	case PageAddPlant:
		return "Add Plant"
	case PageLogWatering:
		return "Log Watering"
	case PageLogNutrients:
		return "Log Nutrients"
	case PageLogHarvest:
		return "Log Harvest"
	case PageExport:
		return "Export Data"
	}
	return string(p)
}

// Action is a form submission. The concrete types are AddPlant, LogWatering,
// LogNutrients and LogHarvest.
type Action interface {
	Page() Page
	Category() domain.Category
	isAction()
}

// AddPlant records a new planting.
type AddPlant struct {
	Name        string
	DatePlanted time.Time
}

// LogWatering records water given to a plant.
type LogWatering struct {
	Plant  string
	Date   time.Time
	Liters float64
}

// LogNutrients records a nutrient product applied to a plant.
type LogNutrients struct {
	Plant   string
	Date    time.Time
	Product string
	Notes   string
}

// LogHarvest records harvested weight for a plant.
type LogHarvest struct {
	Plant string
	Date  time.Time
	Grams float64
}

func (AddPlant) Page() Page     { return PageAddPlant }
func (LogWatering) Page() Page  { return PageLogWatering }
func (LogNutrients) Page() Page { return PageLogNutrients }
func (LogHarvest) Page() Page   { return PageLogHarvest }

func (AddPlant) Category() domain.Category     { return domain.CategoryPlants }
func (LogWatering) Category() domain.Category  { return domain.CategoryWatering }
func (LogNutrients) Category() domain.Category { return domain.CategoryNutrients }
func (LogHarvest) Category() domain.Category   { return domain.CategoryHarvests }

func (AddPlant) isAction()     {}
func (LogWatering) isAction()  {}
func (LogNutrients) isAction() {}
func (LogHarvest) isAction()   {}

// Form dates outside these years are treated as typos.
const (
	MinFormYear = 1900
	MaxFormYear = 2999
)

// ParseFormDate parses a yyyy-mm-dd date; empty input yields the zero time,
// which the service replaces with today.
func ParseFormDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, value)
	}
	if y := t.Year(); y < MinFormYear || y > MaxFormYear {
		return time.Time{}, fmt.Errorf("%w: date %q must fall between years %d and %d", ErrValidation, value, MinFormYear, MaxFormYear)
	}
	return t, nil
}

// ParseFormAmount parses a non-negative quantity; empty input is 0.
func ParseFormAmount(field, value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", ErrValidation, strings.ToLower(field))
	}
	return v, nil
}

func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrValidation, strings.ToLower(field))
	}
	if v < 0 {
		return fmt.Errorf("%w: %s cannot be negative", ErrValidation, strings.ToLower(field))
	}
	return nil
}

func formatDate(t time.Time) string { return t.Format(domain.DateLayout) }

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
