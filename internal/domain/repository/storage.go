package repository

import (
	"context"
	"io"
)

// UploadOptions carries per-object metadata applied on upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// ObjectStorage defines the interface for object storage operations.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type ObjectStorage interface {
	// Upload stores an object under key. size may be -1 when unknown.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, opts UploadOptions) error

	// MakePublic grants anonymous read access to an already uploaded object.
	// Upload and MakePublic are separate calls; an object may briefly exist
	// uploaded but private.
	MakePublic(ctx context.Context, key string) error

	// PublicURL returns the stable public URL of key:
	// <public-base>/<bucket>/<key>.
	PublicURL(key string) string
}
