package artifacts

import (
	"context"
	"fmt"
)

// StoreType selects a Store backend.
type StoreType string

const (
	StoreTypeFS     StoreType = "fs"
	StoreTypeMemory StoreType = "memory"
	StoreTypeS3     StoreType = "s3"
	StoreTypeGCS    StoreType = "gcs"
)

// Config selects and configures a backend. Dir applies to "fs"; Bucket,
// Region, Endpoint and Prefix to the object stores.
type Config struct {
	Type     StoreType
	Dir      string
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewStore builds the Store described by cfg. An empty type means "fs".
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeFS:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("artifact store dir is required for fs storage")
		}
		return NewFileStore(cfg.Dir)
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for S3 storage")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case StoreTypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for GCS storage")
		}
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", cfg.Type)
	}
}
