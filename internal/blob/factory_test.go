package blob

import (
	"context"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "", "", S3Config{})
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("expected memory default, got %v %v", store, err)
	}
	store, err = Open(ctx, "fs", t.TempDir(), S3Config{})
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs store, got %v %v", store, err)
	}
	if _, err := Open(ctx, "s3", "", S3Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, "ftp", "", S3Config{}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
