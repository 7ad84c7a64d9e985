package core_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"growpilot/internal/core"
	"growpilot/pkg/domain"
)

var today = time.Date(2024, time.June, 10, 15, 4, 5, 0, time.UTC)

func newService(opts ...core.ServiceOption) *core.Service {
	opts = append([]core.ServiceOption{core.WithClock(core.ClockFunc(func() time.Time { return today }))}, opts...)
	return core.NewService(opts...)
}

func newStore(t *testing.T, driver core.StorageDriver) core.RecordStore {
	t.Helper()
	store, err := core.OpenRecordStore(context.Background(), driver)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustApply(t *testing.T, svc *core.Service, store core.RecordStore, action core.Action) core.Record {
	t.Helper()
	rec, err := svc.Apply(context.Background(), store, action)
	if err != nil {
		t.Fatalf("apply %T: %v", action, err)
	}
	return rec
}

func TestAddPlantThenTable(t *testing.T) {
	for _, driver := range []core.StorageDriver{core.StorageMemory, core.StorageSQLite} {
		t.Run(string(driver), func(t *testing.T) {
			svc := newService()
			store := newStore(t, driver)
			mustApply(t, svc, store, core.AddPlant{Name: " Basil ", DatePlanted: date("2024-05-01")})

			table, err := svc.Table(context.Background(), store, domain.CategoryPlants)
			if err != nil {
				t.Fatalf("table: %v", err)
			}
			if !reflect.DeepEqual(table.Columns, []string{"Name", "Date Planted"}) {
				t.Fatalf("unexpected columns %v", table.Columns)
			}
			if len(table.Rows) != 1 || !reflect.DeepEqual(table.Rows[0], []string{"Basil", "2024-05-01"}) {
				t.Fatalf("unexpected rows %v", table.Rows)
			}
		})
	}
}

func TestAddPlantDefaultsDateToToday(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	rec := mustApply(t, svc, store, core.AddPlant{Name: "Chili"})
	if v, _ := rec.Get(domain.FieldDatePlanted); v != "2024-06-10" {
		t.Fatalf("expected today's date, got %q", v)
	}
}

func TestAddPlantRequiresName(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	if _, err := svc.Apply(context.Background(), store, core.AddPlant{Name: "  "}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestActivityRequiresPlants(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	actions := []core.Action{
		core.LogWatering{Plant: "Basil", Liters: 1},
		core.LogNutrients{Plant: "Basil", Product: "Kelp"},
		core.LogHarvest{Plant: "Basil", Grams: 10},
	}
	for _, a := range actions {
		_, err := svc.Apply(context.Background(), store, a)
		if !errors.Is(err, core.ErrNoPlants) || !errors.Is(err, core.ErrValidation) {
			t.Fatalf("%T: expected ErrNoPlants validation error, got %v", a, err)
		}
	}
	counts, err := store.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	for c, n := range counts {
		if n != 0 {
			t.Fatalf("expected nothing appended to %s, got %d", c, n)
		}
	}
}

func TestActivityRejectsEmptyAndUnknownPlant(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	mustApply(t, svc, store, core.AddPlant{Name: "Basil"})

	if _, err := svc.Apply(context.Background(), store, core.LogHarvest{Plant: "", Grams: 5}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for empty plant, got %v", err)
	}
	if _, err := svc.Apply(context.Background(), store, core.LogHarvest{Plant: "Mint", Grams: 5}); !errors.Is(err, core.ErrUnknownPlant) {
		t.Fatalf("expected ErrUnknownPlant, got %v", err)
	}
}

func TestAmountsMustBeNonNegativeAndFinite(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	mustApply(t, svc, store, core.AddPlant{Name: "Basil"})
	bad := []core.Action{
		core.LogWatering{Plant: "Basil", Liters: -1},
		core.LogHarvest{Plant: "Basil", Grams: math.Inf(1)},
		core.LogHarvest{Plant: "Basil", Grams: math.NaN()},
	}
	for _, a := range bad {
		if _, err := svc.Apply(context.Background(), store, a); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", a, err)
		}
	}
}

func TestActivityRecordsFieldOrder(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	mustApply(t, svc, store, core.AddPlant{Name: "Basil"})
	mustApply(t, svc, store, core.LogWatering{Plant: "Basil", Date: date("2024-06-01"), Liters: 1.5})
	mustApply(t, svc, store, core.LogNutrients{Plant: "Basil", Date: date("2024-06-02"), Product: "Kelp", Notes: "half, dose"})
	mustApply(t, svc, store, core.LogHarvest{Plant: "Basil", Date: date("2024-06-03"), Grams: 42})

	cases := map[domain.Category][]string{
		domain.CategoryWatering:  {"Plant", "Date", "Liters"},
		domain.CategoryNutrients: {"Plant", "Date", "Product", "Notes"},
		domain.CategoryHarvests:  {"Plant", "Date", "Grams"},
	}
	for category, columns := range cases {
		table, err := svc.Table(context.Background(), store, category)
		if err != nil {
			t.Fatalf("table %s: %v", category, err)
		}
		if !reflect.DeepEqual(table.Columns, columns) {
			t.Fatalf("%s: unexpected columns %v", category, table.Columns)
		}
	}
	table, _ := svc.Table(context.Background(), store, domain.CategoryWatering)
	if table.Rows[0][2] != "1.5" {
		t.Fatalf("unexpected liters %q", table.Rows[0][2])
	}
}

func TestTableUnknownCategory(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	if _, err := svc.Table(context.Background(), store, "seeds"); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestApplyNilAction(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	if _, err := svc.Apply(context.Background(), store, nil); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlantNamesDeduplicates(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	for _, n := range []string{"Basil", "Mint", "Basil"} {
		mustApply(t, svc, store, core.AddPlant{Name: n})
	}
	names, err := svc.PlantNames(context.Background(), store)
	if err != nil {
		t.Fatalf("plant names: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"Basil", "Mint"}) {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestDashboardWithoutHarvestsSkipsForecast(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	dash, err := svc.Dashboard(context.Background(), store)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.HasHarvests || dash.Forecast != nil || len(dash.DailyTotals) != 0 {
		t.Fatalf("expected empty dashboard, got %+v", dash)
	}
}

func TestDashboardGroupsAndForecasts(t *testing.T) {
	svc := newService()
	store := newStore(t, core.StorageMemory)
	mustApply(t, svc, store, core.AddPlant{Name: "Tomato"})
	mustApply(t, svc, store, core.AddPlant{Name: "Pepper"})
	harvests := []core.LogHarvest{
		{Plant: "Tomato", Date: date("2024-06-03"), Grams: 120},
		{Plant: "Tomato", Date: date("2024-06-01"), Grams: 60},
		{Plant: "Pepper", Date: date("2024-06-01"), Grams: 40},
		{Plant: "Pepper", Date: date("2024-06-02"), Grams: 150},
	}
	for _, h := range harvests {
		mustApply(t, svc, store, h)
	}

	dash, err := svc.Dashboard(context.Background(), store)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	want := []core.DailyTotal{
		{Date: date("2024-06-01"), Grams: 100},
		{Date: date("2024-06-02"), Grams: 150},
		{Date: date("2024-06-03"), Grams: 120},
	}
	if !reflect.DeepEqual(dash.DailyTotals, want) {
		t.Fatalf("unexpected totals %+v", dash.DailyTotals)
	}
	if dash.Counts[domain.CategoryHarvests] != 4 || dash.Counts[domain.CategoryPlants] != 2 {
		t.Fatalf("unexpected counts %v", dash.Counts)
	}
	if dash.Forecast == nil || len(dash.Forecast.Points) != 14 || dash.Forecast.Horizon != 14 {
		t.Fatalf("expected 14-day forecast, got %+v", dash.Forecast)
	}
	if !dash.Forecast.Points[0].Date.Equal(date("2024-06-04")) {
		t.Fatalf("forecast should start the day after the last harvest, got %s", dash.Forecast.Points[0].Date)
	}
	if math.Abs(dash.Forecast.Slope-10) > 1e-9 {
		t.Fatalf("unexpected slope %f", dash.Forecast.Slope)
	}
}

func TestDashboardSingleHarvestIsFlat(t *testing.T) {
	svc := newService(core.WithForecastHorizon(3))
	store := newStore(t, core.StorageMemory)
	mustApply(t, svc, store, core.AddPlant{Name: "Tomato"})
	mustApply(t, svc, store, core.LogHarvest{Plant: "Tomato", Date: date("2024-06-01"), Grams: 80})
	dash, err := svc.Dashboard(context.Background(), store)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.Forecast.Degenerate || len(dash.Forecast.Points) != 3 {
		t.Fatalf("unexpected forecast %+v", dash.Forecast)
	}
	for _, p := range dash.Forecast.Points {
		if p.Grams != 80 {
			t.Fatalf("expected flat 80g forecast, got %+v", p)
		}
	}
}

func TestForecastEmptySeriesFails(t *testing.T) {
	if _, err := newService().Forecast(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty series")
	}
}
