package sqlite

import (
	"context"
	"testing"

	"growpilot/internal/infra/persistence/storetest"
	"growpilot/pkg/domain"
)

func openStore(t *testing.T) domain.RecordStore {
	t.Helper()
	store, err := NewStore(context.Background())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, openStore)
}

func TestStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := openStore(t)
	b := openStore(t)
	if err := a.Append(ctx, domain.CategoryPlants, domain.Record{{Name: domain.FieldName, Value: "Kale"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	recs, err := b.Records(ctx, domain.CategoryPlants)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected separate in-memory databases, got %d records", len(recs))
	}
}

func TestStoreUsesSingleConnection(t *testing.T) {
	store, err := NewStore(context.Background())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if got := store.DB().Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected one pinned connection, got %d", got)
	}
}
