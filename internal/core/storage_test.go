package core

import (
	"classroom/internal/infra/persistence/memory"
	"classroom/internal/infra/persistence/sqlite"
	"classroom/pkg/domain"
	"context"
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), Config{StorageDriver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	cfg := Config{StorageDriver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "classroom.db")}
	ctx := context.Background()
	store, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	c := NewContainer(store, WithLogger(quietLogger()))
	st := seedStudent(t, c, "Persisted")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok, _ := reopened.Find(ctx, domain.EntityStudent, st.ID); !ok {
		t.Fatalf("student %s lost across reopen", st.ID)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(context.Background(), Config{StorageDriver: "oracle"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
