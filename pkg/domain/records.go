// Package domain defines the record categories, flat key-value records, and
// the record store contract shared by the service layer and storage drivers.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category identifies one of the session logs.
type Category string

// Supported record categories, in display order.
const (
	// CategoryPlants holds plantings.
	CategoryPlants Category = "plants"
	// CategoryWatering holds watering events.
	CategoryWatering Category = "watering"
	// CategoryNutrients holds nutrient applications.
	CategoryNutrients Category = "nutrients"
	// CategoryHarvests holds harvest weights.
	CategoryHarvests Category = "harvests"
)

// ErrUnknownCategory is returned when a category name is not one of the four logs.
var ErrUnknownCategory = errors.New("unknown record category")

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryPlants, CategoryWatering, CategoryNutrients, CategoryHarvests}
}

// ParseCategory resolves a category name, case-insensitively.
func ParseCategory(name string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPlants, CategoryWatering, CategoryNutrients, CategoryHarvests:
		return true
	}
	return false
}

// Title returns the capitalised category name used in labels and filenames.
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	s := string(c)
	return strings.ToUpper(s[:1]) + s[1:]
}

// Column names written by the input forms.
const (
	FieldName        = "Name"
	FieldDatePlanted = "Date Planted"
	FieldPlant       = "Plant"
	FieldDate        = "Date"
	FieldLiters      = "Liters"
	FieldProduct     = "Product"
	FieldNotes       = "Notes"
	FieldGrams       = "Grams"
)

// DateLayout is the calendar date format used inside records.
const DateLayout = "2006-01-02"

// Field is a single named value of a record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is a flat, ordered set of fields. Field order is submission order.
type Record []Field

// Get returns the value of the named field.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Clone returns a copy that shares no backing array with r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return append(Record(nil), r...)
}

// Map returns the record as a field-name keyed map.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r))
	for _, f := range r {
		out[f.Name] = f.Value
	}
	return out
}

// Table is the tabular view of a category used for display and export.
type Table struct {
	Category Category   `json:"category"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// BuildTable lays records out as rows. Columns are the union of field names in
// first-seen order; a field missing from a record renders as "".
func BuildTable(category Category, records []Record) Table {
	columns := make([]string, 0)
	index := make(map[string]int)
	for _, rec := range records {
		for _, f := range rec {
			if _, ok := index[f.Name]; ok {
				continue
			}
			index[f.Name] = len(columns)
			columns = append(columns, f.Name)
		}
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(columns))
		for _, f := range rec {
			row[index[f.Name]] = f.Value
		}
		rows = append(rows, row)
	}
	return Table{Category: category, Columns: columns, Rows: rows}
}

// RecordStore is the session-scoped, append-only home of the four logs.
// Implementations return copies; callers may not mutate stored records.
type RecordStore interface {
	Append(ctx context.Context, category Category, record Record) error
	Records(ctx context.Context, category Category) ([]Record, error)
	AsTable(ctx context.Context, category Category) (Table, error)
	Counts(ctx context.Context) (map[Category]int, error)
	Close() error
}
