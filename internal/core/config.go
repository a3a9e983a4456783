package core

import (
	"classroom/internal/blob"
	"classroom/internal/repository"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by LoadConfig.
const (
	EnvStorageDriver     = "CLASSROOM_STORAGE_DRIVER"
	EnvSQLitePath        = "CLASSROOM_SQLITE_PATH"
	EnvPostgresDSN       = "CLASSROOM_POSTGRES_DSN"
	EnvDebounce          = "CLASSROOM_DEBOUNCE"
	EnvUpdateBuffer      = "CLASSROOM_UPDATE_BUFFER"
	EnvBlobDriver        = "CLASSROOM_BLOB_DRIVER"
	EnvBlobRoot          = "CLASSROOM_BLOB_ROOT"
	EnvBlobS3Bucket      = "CLASSROOM_BLOB_S3_BUCKET"
	EnvBlobS3Region      = "CLASSROOM_BLOB_S3_REGION"
	EnvBlobS3Prefix      = "CLASSROOM_BLOB_S3_PREFIX"
	EnvBlobS3Endpoint    = "CLASSROOM_BLOB_S3_ENDPOINT"
	EnvBlobS3AccessKey   = "CLASSROOM_BLOB_S3_ACCESS_KEY_ID"
	EnvBlobS3SecretKey   = "CLASSROOM_BLOB_S3_SECRET_ACCESS_KEY"
	EnvBlobS3PathStyle   = "CLASSROOM_BLOB_S3_PATH_STYLE"
	defaultStorageDriver = StorageSQLite
)

// Config carries every knob the container needs. Zero values fall back to
// package defaults.
type Config struct {
	StorageDriver StorageDriver
	SQLitePath    string
	PostgresDSN   string

	// Debounce is the coalescing window for structural events.
	Debounce     time.Duration
	UpdateBuffer int

	// Snapshot archives. BlobRoot is only read by the fs driver, S3 only by s3.
	BlobDriver string
	BlobRoot   string
	S3         blob.S3Config
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		StorageDriver: defaultStorageDriver,
		Debounce:      repository.DefaultDebounce,
		UpdateBuffer:  repository.DefaultUpdateBuffer,
		BlobDriver:    string(blob.DriverMemory),
	}
}

// LoadConfig reads the CLASSROOM_* environment on top of DefaultConfig.
//
//	CLASSROOM_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CLASSROOM_SQLITE_PATH: path to sqlite file (default classroom.db)
//	CLASSROOM_POSTGRES_DSN: postgres DSN when driver=postgres
//	CLASSROOM_DEBOUNCE: Go duration, e.g. 100ms
//	CLASSROOM_BLOB_DRIVER: memory|fs|s3 for snapshot archives
//	CLASSROOM_BLOB_ROOT: archive directory when blob driver=fs (default ./archives)
func LoadConfig() (Config, error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	if v := get(EnvStorageDriver); v != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(v))
	}
	cfg.SQLitePath = get(EnvSQLitePath)
	cfg.PostgresDSN = get(EnvPostgresDSN)
	if v := get(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%s: invalid duration %q", EnvDebounce, v)
		}
		cfg.Debounce = d
	}
	if v := get(EnvUpdateBuffer); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%s: invalid size %q", EnvUpdateBuffer, v)
		}
		cfg.UpdateBuffer = n
	}
	if v := get(EnvBlobDriver); v != "" {
		cfg.BlobDriver = strings.ToLower(v)
	}
	cfg.BlobRoot = get(EnvBlobRoot)
	cfg.S3 = blob.S3Config{
		Bucket:          get(EnvBlobS3Bucket),
		Region:          get(EnvBlobS3Region),
		Prefix:          get(EnvBlobS3Prefix),
		Endpoint:        get(EnvBlobS3Endpoint),
		AccessKeyID:     get(EnvBlobS3AccessKey),
		SecretAccessKey: get(EnvBlobS3SecretKey),
		PathStyle:       strings.EqualFold(get(EnvBlobS3PathStyle), "true"),
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot be opened.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %s", c.StorageDriver)
	}
	switch blob.Driver(c.BlobDriver) {
	case "", blob.DriverMemory, blob.DriverFilesystem:
	case blob.DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%s required when blob driver is s3", EnvBlobS3Bucket)
		}
	default:
		return fmt.Errorf("unknown blob driver %s", c.BlobDriver)
	}
	return nil
}
