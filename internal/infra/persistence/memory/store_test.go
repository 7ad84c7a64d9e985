package memory

import (
	"context"
	"errors"
	"testing"

	"growpilot/internal/infra/persistence/storetest"
	"growpilot/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.RecordStore { return NewStore() })
}

func TestStoreClosedErrors(t *testing.T) {
	store := NewStore()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := store.Counts(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
