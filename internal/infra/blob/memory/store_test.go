package memory

import (
	"bytes"
	"classroom/internal/blob/core"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestStoreMissingKeys(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}
}

func TestStoreRoundTripAndList(t *testing.T) {
	store := New()
	ctx := context.Background()
	meta := map[string]string{"students": "3"}
	if _, err := store.Put(ctx, "archives/b", bytes.NewReader([]byte("two")), core.PutOptions{Metadata: meta}); err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["students"] = "mutated"
	if _, err := store.Put(ctx, "archives/a", bytes.NewReader([]byte("one")), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "archives/a", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected create-only conflict, got %v", err)
	}
	info, rc, err := store.Get(ctx, "archives/b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "two" || info.Metadata["students"] != "3" {
		t.Fatalf("unexpected blob %q %+v", body, info)
	}
	list, err := store.List(ctx, "archives/")
	if err != nil || len(list) != 2 || list[0].Key != "archives/a" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if other, _ := store.List(ctx, "other/"); len(other) != 0 {
		t.Fatalf("expected empty prefix listing")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStorePutReadErrorAndDriver(t *testing.T) {
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
}
