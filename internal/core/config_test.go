package core

import (
	"classroom/internal/repository"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(lookupFrom(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageDriver != StorageSQLite {
		t.Fatalf("expected sqlite default, got %s", cfg.StorageDriver)
	}
	if cfg.Debounce != repository.DefaultDebounce || cfg.UpdateBuffer != repository.DefaultUpdateBuffer {
		t.Fatalf("unexpected stream defaults %+v", cfg)
	}
	if cfg.BlobDriver != "memory" {
		t.Fatalf("expected memory blob driver, got %s", cfg.BlobDriver)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(lookupFrom(map[string]string{
		EnvStorageDriver:   " Postgres ",
		EnvPostgresDSN:     "postgres://db/classroom",
		EnvDebounce:        "250ms",
		EnvUpdateBuffer:    "8",
		EnvBlobDriver:      "s3",
		EnvBlobS3Bucket:    "archives",
		EnvBlobS3Prefix:    "classroom/",
		EnvBlobS3PathStyle: "TRUE",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageDriver != StoragePostgres || cfg.PostgresDSN != "postgres://db/classroom" {
		t.Fatalf("unexpected storage config %+v", cfg)
	}
	if cfg.Debounce != 250*time.Millisecond || cfg.UpdateBuffer != 8 {
		t.Fatalf("unexpected stream config %+v", cfg)
	}
	if cfg.S3.Bucket != "archives" || cfg.S3.Prefix != "classroom/" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected s3 config %+v", cfg.S3)
	}
}

func TestLoadConfigFilesystemArchives(t *testing.T) {
	cfg, err := loadConfig(lookupFrom(map[string]string{
		EnvBlobDriver: "FS",
		EnvBlobRoot:   "/var/lib/classroom/archives",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BlobDriver != "fs" || cfg.BlobRoot != "/var/lib/classroom/archives" {
		t.Fatalf("unexpected blob config %s %s", cfg.BlobDriver, cfg.BlobRoot)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":    {EnvStorageDriver: "oracle"},
		"debounce":  {EnvDebounce: "soon"},
		"negative":  {EnvDebounce: "-1s"},
		"buffer":    {EnvUpdateBuffer: "0"},
		"blob":      {EnvBlobDriver: "ftp"},
		"s3 bucket": {EnvBlobDriver: "s3"},
	}
	for name, env := range cases {
		if _, err := loadConfig(lookupFrom(env)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
