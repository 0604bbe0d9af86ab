package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hszk-dev/hlspublish/internal/domain/repository"
)

// s3API defines the subset of *s3.Client used by S3Client.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

var _ s3API = (*s3.Client)(nil)

// S3Config holds configuration for the AWS S3 client.
// Credentials come from the default AWS chain (env, shared config, IAM role).
type S3Config struct {
	Region        string
	Bucket        string
	Endpoint      string // Optional: custom endpoint for S3-compatible services
	UsePathStyle  bool
	PublicBaseURL string // Optional: defaults to https://s3.<region>.amazonaws.com
}

// S3Client implements repository.ObjectStorage on AWS S3.
type S3Client struct {
	client        s3API
	bucket        string
	publicBaseURL string
}

// Compile-time verification that S3Client implements repository.ObjectStorage.
var _ repository.ObjectStorage = (*S3Client)(nil)

// NewS3Client loads the default AWS configuration and verifies bucket access.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
	}

	return newS3ClientWithAPI(ctx, client, cfg.Bucket, publicBase)
}

// newS3ClientWithAPI creates an S3Client with a given s3API implementation.
// This is used for dependency injection in tests.
func newS3ClientWithAPI(ctx context.Context, client s3API, bucket, publicBaseURL string) (*S3Client, error) {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
		}
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	return &S3Client{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Upload stores an object in the bucket.
func (c *S3Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, opts repository.UploadOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// MakePublic applies the public-read canned ACL to an uploaded object.
func (c *S3Client) MakePublic(ctx context.Context, key string) error {
	_, err := c.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("failed to set public acl: %w", err)
	}
	return nil
}

// Ping verifies the bucket is still reachable with the configured credentials.
func (c *S3Client) Ping(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("failed to ping s3: %w", err)
	}
	return nil
}

// PublicURL returns <public-base>/<bucket>/<key>.
func (c *S3Client) PublicURL(key string) string {
	return publicURL(c.publicBaseURL, c.bucket, key)
}

// Bucket returns the configured bucket name.
func (c *S3Client) Bucket() string {
	return c.bucket
}
