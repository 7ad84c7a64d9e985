package core

import (
	"errors"
	"testing"

	"growpilot/pkg/domain"
)

func TestParsePage(t *testing.T) {
	for _, p := range Pages() {
		got, err := ParsePage(" " + string(p) + " ")
		if err != nil || got != p {
			t.Fatalf("parse %s: %v %v", p, got, err)
		}
		if p.Title() == "" {
			t.Fatalf("missing title for %s", p)
		}
	}
	if _, err := ParsePage("settings"); err == nil {
		t.Fatalf("expected unknown page error")
	}
}

func TestActionKinds(t *testing.T) {
	cases := []struct {
		action   Action
		page     Page
		category domain.Category
	}{
		{AddPlant{}, PageAddPlant, domain.CategoryPlants},
		{LogWatering{}, PageLogWatering, domain.CategoryWatering},
		{LogNutrients{}, PageLogNutrients, domain.CategoryNutrients},
		{LogHarvest{}, PageLogHarvest, domain.CategoryHarvests},
	}
	for _, tc := range cases {
		if tc.action.Page() != tc.page || tc.action.Category() != tc.category {
			t.Fatalf("%T: got %s/%s", tc.action, tc.action.Page(), tc.action.Category())
		}
	}
}

func TestParseFormInputs(t *testing.T) {
	if dt, err := ParseFormDate(""); err != nil || !dt.IsZero() {
		t.Fatalf("empty date: %v %v", dt, err)
	}
	if _, err := ParseFormDate("06/01/2024"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, typo := range []string{"0202-06-01", "1700-01-01", "20240-06-01", "3024-06-01"} {
		if _, err := ParseFormDate(typo); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", typo, err)
		}
	}
	if dt, err := ParseFormDate("1900-01-01"); err != nil || dt.Year() != 1900 {
		t.Fatalf("lower bound: %v %v", dt, err)
	}
	if v, err := ParseFormAmount("Grams", " 12.5 "); err != nil || v != 12.5 {
		t.Fatalf("amount: %v %v", v, err)
	}
	if v, err := ParseFormAmount("Grams", ""); err != nil || v != 0 {
		t.Fatalf("empty amount: %v %v", v, err)
	}
	if _, err := ParseFormAmount("Grams", "ten"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
