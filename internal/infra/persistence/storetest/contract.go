// Package storetest holds the behavioural contract every record store driver
// must satisfy.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"growpilot/pkg/domain"
)

// Opener returns a fresh, empty store.
type Opener func(t *testing.T) domain.RecordStore

// Run exercises the record store contract against open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	t.Run("starts empty", func(t *testing.T) { testStartsEmpty(t, open(t)) })
	t.Run("append then table", func(t *testing.T) { testAppendThenTable(t, open(t)) })
	t.Run("insertion order", func(t *testing.T) { testInsertionOrder(t, open(t)) })
	t.Run("categories isolated", func(t *testing.T) { testCategoriesIsolated(t, open(t)) })
	t.Run("returns copies", func(t *testing.T) { testReturnsCopies(t, open(t)) })
	t.Run("unknown category", func(t *testing.T) { testUnknownCategory(t, open(t)) })
	t.Run("closed", func(t *testing.T) { testClosed(t, open(t)) })
}

func testStartsEmpty(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	for _, c := range domain.Categories() {
		n, ok := counts[c]
		if !ok || n != 0 {
			t.Fatalf("expected empty %s log, got %d (present=%v)", c, n, ok)
		}
		recs, err := store.Records(ctx, c)
		if err != nil {
			t.Fatalf("records %s: %v", c, err)
		}
		if len(recs) != 0 {
			t.Fatalf("expected no %s records", c)
		}
	}
}

func testAppendThenTable(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	rec := domain.Record{
		{Name: domain.FieldName, Value: "Tomato"},
		{Name: domain.FieldDatePlanted, Value: "2024-04-02"},
	}
	if err := store.Append(ctx, domain.CategoryPlants, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	table, err := store.AsTable(ctx, domain.CategoryPlants)
	if err != nil {
		t.Fatalf("as table: %v", err)
	}
	if table.Category != domain.CategoryPlants {
		t.Fatalf("unexpected table category %s", table.Category)
	}
	if !reflect.DeepEqual(table.Columns, []string{domain.FieldName, domain.FieldDatePlanted}) {
		t.Fatalf("unexpected columns %v", table.Columns)
	}
	if len(table.Rows) != 1 || !reflect.DeepEqual(table.Rows[0], []string{"Tomato", "2024-04-02"}) {
		t.Fatalf("unexpected rows %v", table.Rows)
	}
}

func testInsertionOrder(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	for _, g := range []string{"30", "10", "20"} {
		rec := domain.Record{{Name: domain.FieldGrams, Value: g}}
		if err := store.Append(ctx, domain.CategoryHarvests, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	recs, err := store.Records(ctx, domain.CategoryHarvests)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	var got []string
	for _, r := range recs {
		v, _ := r.Get(domain.FieldGrams)
		got = append(got, v)
	}
	if !reflect.DeepEqual(got, []string{"30", "10", "20"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func testCategoriesIsolated(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	if err := store.Append(ctx, domain.CategoryWatering, domain.Record{{Name: domain.FieldLiters, Value: "2"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[domain.CategoryWatering] != 1 || counts[domain.CategoryNutrients] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func testReturnsCopies(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	rec := domain.Record{{Name: domain.FieldProduct, Value: "Kelp"}}
	if err := store.Append(ctx, domain.CategoryNutrients, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec[0].Value = "mutated"
	recs, err := store.Records(ctx, domain.CategoryNutrients)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	recs[0][0].Value = "mutated again"
	again, err := store.Records(ctx, domain.CategoryNutrients)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if v, _ := again[0].Get(domain.FieldProduct); v != "Kelp" {
		t.Fatalf("store shares record storage, got %q", v)
	}
}

func testUnknownCategory(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	if err := store.Append(ctx, "seeds", domain.Record{}); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory on append, got %v", err)
	}
	if _, err := store.Records(ctx, "seeds"); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory on records, got %v", err)
	}
	if _, err := store.AsTable(ctx, "seeds"); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory on table, got %v", err)
	}
}

func testClosed(t *testing.T, store domain.RecordStore) {
	ctx := context.Background()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Append(ctx, domain.CategoryPlants, domain.Record{}); err == nil {
		t.Fatalf("expected append after close to fail")
	}
	if _, err := store.Records(ctx, domain.CategoryPlants); err == nil {
		t.Fatalf("expected records after close to fail")
	}
}
