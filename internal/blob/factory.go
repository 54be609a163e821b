package blob

import (
	"context"
	"fmt"
	"os"

	"entitysync/internal/infra/blob/fs"
	memorystore "entitysync/internal/infra/blob/memory"
	infraS3 "entitysync/internal/infra/blob/s3"
)

// Environment variables read by Open.
const (
	EnvDriver    = "ENTITYSYNC_BLOB_DRIVER"
	EnvFSRoot    = "ENTITYSYNC_BLOB_FS_ROOT"
	EnvPublicURL = "ENTITYSYNC_BLOB_PUBLIC_URL"
)

// Open selects a Store implementation using environment variables.
//
//	ENTITYSYNC_BLOB_DRIVER: fs|s3|memory (default fs)
//	ENTITYSYNC_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	ENTITYSYNC_BLOB_PUBLIC_URL: base URL variants are served from (fs driver)
//	(S3 specific variables are documented in internal/infra/blob/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv(EnvDriver)
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot), os.Getenv(EnvPublicURL))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem constructs a filesystem-backed Store rooted at root. Variant
// URLs are built from publicURL when it is set.
func NewFilesystem(root, publicURL string) (Store, error) {
	return fs.New(root, fs.WithPublicURL(publicURL))
}

// S3Config re-exports the infra S3 configuration.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
