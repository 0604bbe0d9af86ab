package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/hlspublish/internal/domain/repository"
)

// publicReadACL is honoured by S3-compatible gateways that implement
// object ACLs. Plain MinIO ignores it and relies on the bucket policy
// installed by EnsurePublicPolicy.
const publicReadACL = "public-read"

// minioClient defines the subset of *minio.Client used by Client.
// This abstraction allows for easier unit testing with mocks.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
}

// Compile-time verification that *minio.Client satisfies minioClient.
var _ minioClient = (*minio.Client)(nil)

// ClientConfig holds configuration for the MinIO client.
type ClientConfig struct {
	Endpoint      string
	PublicBaseURL string // Optional: external-facing base for public URLs; defaults to the endpoint
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
}

// Client wraps a MinIO client and implements repository.ObjectStorage.
type Client struct {
	client        minioClient
	bucket        string
	publicBaseURL string
}

// Compile-time verification that Client implements repository.ObjectStorage.
var _ repository.ObjectStorage = (*Client)(nil)

// NewClient creates a new MinIO client.
// It verifies the bucket exists during initialization to fail fast on misconfiguration.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = scheme + "://" + cfg.Endpoint
	}

	return newClientWithMinioClient(ctx, client, cfg.Bucket, publicBase)
}

// newClientWithMinioClient creates a Client with a given minioClient implementation.
// This is used for dependency injection in tests.
func newClientWithMinioClient(ctx context.Context, client minioClient, bucket, publicBaseURL string) (*Client, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	}

	return &Client{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Upload stores an object in the bucket with the given content type and cache policy.
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, opts repository.UploadOptions) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// MakePublic rewrites the object's metadata in place with a public-read ACL.
// A server-side copy onto itself is the only way minio-go exposes to change
// headers after upload, so content type and cache control are carried over
// from the current object.
func (c *Client) MakePublic(ctx context.Context, key string) error {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to stat object: %w", err)
	}

	meta := map[string]string{
		"x-amz-acl": publicReadACL,
	}
	if info.ContentType != "" {
		meta["Content-Type"] = info.ContentType
	}
	if cc := info.Metadata.Get("Cache-Control"); cc != "" {
		meta["Cache-Control"] = cc
	}

	_, err = c.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          c.bucket,
			Object:          key,
			UserMetadata:    meta,
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{
			Bucket: c.bucket,
			Object: key,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to set public acl: %w", err)
	}
	return nil
}

// EnsurePublicPolicy installs a bucket policy granting anonymous GetObject
// on everything under prefix.
func (c *Client) EnsurePublicPolicy(ctx context.Context, prefix string) error {
	doc, err := publicReadPolicy(c.bucket, prefix)
	if err != nil {
		return err
	}
	if err := c.client.SetBucketPolicy(ctx, c.bucket, doc); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

// PublicURL returns <public-base>/<bucket>/<key>.
func (c *Client) PublicURL(key string) string {
	return publicURL(c.publicBaseURL, c.bucket, key)
}

// Ping verifies the MinIO connection is alive by checking bucket access.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
