package core

import (
	"context"
	"fmt"

	"growpilot/internal/infra/persistence/memory"
	"growpilot/internal/infra/persistence/sqlite"
	"growpilot/pkg/domain"
)

// StorageDriver identifies a record store implementation. Both drivers keep
// records in process memory for the life of a session only.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory" // slices guarded by a mutex (default)
	StorageSQLite StorageDriver = "sqlite" // private in-memory sqlite database
)

type (
	RecordStore = domain.RecordStore
	Record      = domain.Record
	Table       = domain.Table
	Category    = domain.Category
)

// OpenRecordStore returns an empty store for driver. An empty driver selects
// memory.
func OpenRecordStore(ctx context.Context, driver StorageDriver) (RecordStore, error) {
	switch driver {
	case "", StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// StoreOpener binds a driver for repeated use, e.g. one store per session.
func StoreOpener(driver StorageDriver) func(context.Context) (RecordStore, error) {
	return func(ctx context.Context) (RecordStore, error) {
		return OpenRecordStore(ctx, driver)
	}
}
