// Package storage keeps item images outside the database. The core only
// stores the returned public URL and key.
package storage

import (
	"context"
	"io"
)

type Object struct {
	Key string
	URL string
}

// ImageStore puts and removes public objects.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (Object, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Driver        string // "disk" or "minio"
	UploadDir     string
	PublicBaseURL string // e.g. http://localhost:8000

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string // CDN or proxy in front of the bucket; defaults to endpoint/bucket
}

// New picks the driver named in cfg; anything but "minio" means local disk.
func New(ctx context.Context, cfg Config) (ImageStore, error) {
	if cfg.Driver == "minio" {
		return NewMinioStore(ctx, cfg)
	}
	return NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL+UploadsPath)
}
