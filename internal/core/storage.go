package core

import (
	"classroom/internal/infra/persistence/memory"
	"classroom/internal/infra/persistence/postgres"
	"classroom/internal/infra/persistence/sqlite"
	"classroom/pkg/domain"
	"context"
	"fmt"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// SnapshotStore is a persistent store whose full state can be exported and
// restored. Every backend shipped with the module satisfies it.
type SnapshotStore interface {
	domain.PersistentStore
	ExportState() memory.Snapshot
	Restore(ctx context.Context, snapshot memory.Snapshot) error
}

var (
	_ SnapshotStore = (*memory.Store)(nil)
	_ SnapshotStore = (*sqlite.Store)(nil)
	_ SnapshotStore = (*postgres.Store)(nil)
)

// OpenPersistentStore selects a backend from cfg.
func OpenPersistentStore(ctx context.Context, cfg Config, engine *domain.RulesEngine) (SnapshotStore, error) {
	driver := cfg.StorageDriver
	if driver == "" {
		driver = defaultStorageDriver
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
