package storage

import (
	"context"
	"time"
)

// ObjectStore is the object storage capability the pipeline depends on:
// presigned URLs for client-side uploads and public downloads, plus the
// worker's direct transfer of encode inputs and outputs.
type ObjectStore interface {
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignGet(ctx context.Context, key, filename string, expires time.Duration) (string, error)
	Download(ctx context.Context, key, destPath string) (int64, error)
	Upload(ctx context.Context, key, srcPath, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
