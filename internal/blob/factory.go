package blob

import (
	"context"
	"fmt"

	fsstore "classroom/internal/infra/blob/fs"
	memorystore "classroom/internal/infra/blob/memory"
	infraS3 "classroom/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Open selects a Store implementation for the configured driver. An empty
// driver yields the in-memory store; fsRoot is only read by the fs driver.
func Open(ctx context.Context, driver, fsRoot string, s3cfg S3Config) (Store, error) {
	switch Driver(driver) {
	case "", DriverMemory:
		return memorystore.New(), nil
	case DriverFilesystem:
		return fsstore.New(fsRoot)
	case DriverS3:
		return infraS3.New(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
