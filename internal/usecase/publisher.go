package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/metrics"
	"github.com/hszk-dev/hlspublish/internal/transcoder"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCacheControl marks published HLS files as immutable for a year.
	DefaultCacheControl = "public, max-age=31536000"

	// DefaultUploadConcurrency bounds parallel uploads per job.
	DefaultUploadConcurrency = 4

	contentTypeManifest = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/mp2t"
	contentTypeDefault  = "application/octet-stream"
)

// Publisher makes a verified HLS package playable and returns its URL.
type Publisher interface {
	// Publish exposes the files under job.OutputDir and returns the manifest URL.
	Publish(ctx context.Context, job *model.Job) (string, error)

	// RetainsOutput reports whether the output directory must survive a
	// successful publish because it is served from local disk.
	RetainsOutput() bool
}

// ObjectPublisherConfig holds configuration for ObjectPublisher.
type ObjectPublisherConfig struct {
	// Prefix is prepended to every object key: <Prefix>/<jobID>/<relative path>.
	Prefix string
	// Concurrency is the maximum number of files uploaded at once.
	Concurrency int
	// CacheControl is applied to every uploaded object.
	CacheControl string
}

// DefaultObjectPublisherConfig returns the default configuration.
func DefaultObjectPublisherConfig() ObjectPublisherConfig {
	return ObjectPublisherConfig{
		Prefix:       "hls",
		Concurrency:  DefaultUploadConcurrency,
		CacheControl: DefaultCacheControl,
	}
}

// ObjectPublisher uploads a job's output directory to object storage and
// marks every object world-readable.
type ObjectPublisher struct {
	storage      repository.ObjectStorage
	prefix       string
	concurrency  int
	cacheControl string
}

var _ Publisher = (*ObjectPublisher)(nil)

// NewObjectPublisher creates a new ObjectPublisher.
func NewObjectPublisher(storage repository.ObjectStorage, cfg ObjectPublisherConfig) *ObjectPublisher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultUploadConcurrency
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = DefaultCacheControl
	}
	return &ObjectPublisher{
		storage:      storage,
		prefix:       cfg.Prefix,
		concurrency:  cfg.Concurrency,
		cacheControl: cfg.CacheControl,
	}
}

// objectFile is one file of the output directory and the key it is published under.
type objectFile struct {
	LocalPath string
	Key       string
}

// Publish walks the output directory and uploads every file with bounded
// concurrency. The root manifest is published last, after all segments
// succeeded, so a public manifest never references missing segments.
// The first failing file fails the whole step; objects already committed are
// left in place.
func (p *ObjectPublisher) Publish(ctx context.Context, job *model.Job) (string, error) {
	jobPrefix := path.Join(p.prefix, job.ID.String())
	manifestLocal := filepath.Join(job.OutputDir, transcoder.ManifestName)
	manifestKey := path.Join(jobPrefix, transcoder.ManifestName)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var walkErr error
	uploaded := 0
	for file, err := range walkOutput(job.OutputDir, jobPrefix) {
		if err != nil {
			walkErr = newStageError(StagePublish, file.LocalPath, err)
			break
		}
		if gctx.Err() != nil {
			break
		}
		if file.LocalPath == manifestLocal {
			continue
		}
		uploaded++
		g.Go(func() error {
			return p.publishFile(gctx, file)
		})
	}

	if err := g.Wait(); err != nil {
		p.logPartial(job, uploaded, err)
		return "", err
	}
	if walkErr != nil {
		return "", walkErr
	}
	if err := ctx.Err(); err != nil {
		return "", newStageError(StagePublish, "", err)
	}

	if err := p.publishFile(ctx, objectFile{LocalPath: manifestLocal, Key: manifestKey}); err != nil {
		p.logPartial(job, uploaded, err)
		return "", err
	}

	return p.storage.PublicURL(manifestKey), nil
}

// RetainsOutput is false: the package lives in object storage once published.
func (p *ObjectPublisher) RetainsOutput() bool {
	return false
}

// publishFile uploads one file and grants public read on it.
func (p *ObjectPublisher) publishFile(ctx context.Context, file objectFile) error {
	if err := p.uploadFile(ctx, file); err != nil {
		metrics.UploadedObjectsTotal.WithLabelValues(metrics.StatusError).Inc()
		return newStageError(StagePublish, file.LocalPath, err)
	}
	if err := p.storage.MakePublic(ctx, file.Key); err != nil {
		metrics.UploadedObjectsTotal.WithLabelValues(metrics.StatusError).Inc()
		return newStageError(StagePublish, file.LocalPath, fmt.Errorf("make public: %w", err))
	}
	metrics.UploadedObjectsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	return nil
}

func (p *ObjectPublisher) uploadFile(ctx context.Context, file objectFile) error {
	f, err := os.Open(file.LocalPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	return p.storage.Upload(ctx, file.Key, f, info.Size(), repository.UploadOptions{
		ContentType:  ContentTypeFor(file.LocalPath),
		CacheControl: p.cacheControl,
	})
}

func (p *ObjectPublisher) logPartial(job *model.Job, attempted int, err error) {
	slog.Warn("publish aborted, already uploaded objects are not rolled back",
		"job_id", job.ID,
		"prefix", path.Join(p.prefix, job.ID.String()),
		"attempted_files", attempted,
		"error", err,
	)
}

// walkOutput lazily yields every regular file under root, depth-first,
// together with its object key <prefix>/<path relative to root>.
func walkOutput(root, prefix string) iter.Seq2[objectFile, error] {
	return func(yield func(objectFile, error) bool) {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				yield(objectFile{LocalPath: p}, err)
				return filepath.SkipAll
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				yield(objectFile{LocalPath: p}, err)
				return filepath.SkipAll
			}
			file := objectFile{
				LocalPath: p,
				Key:       path.Join(prefix, filepath.ToSlash(rel)),
			}
			if !yield(file, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// ContentTypeFor returns the MIME type for an HLS package file.
func ContentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".m3u8":
		return contentTypeManifest
	case ".ts":
		return contentTypeSegment
	default:
		return contentTypeDefault
	}
}

// LocalPublisher leaves the package on disk, where the HTTP server serves it
// under /hls/.
type LocalPublisher struct {
	baseURL string
}

var _ Publisher = (*LocalPublisher)(nil)

// NewLocalPublisher creates a LocalPublisher whose URLs start with baseURL.
func NewLocalPublisher(baseURL string) *LocalPublisher {
	return &LocalPublisher{baseURL: baseURL}
}

// Publish returns <baseURL>/hls/<jobID>/index.m3u8.
func (p *LocalPublisher) Publish(_ context.Context, job *model.Job) (string, error) {
	u, err := url.JoinPath(p.baseURL, "hls", job.ID.String(), transcoder.ManifestName)
	if err != nil {
		return "", newStageError(StagePublish, "", fmt.Errorf("build local url: %w", err))
	}
	return u, nil
}

// RetainsOutput is true: the output directory is what gets served.
func (p *LocalPublisher) RetainsOutput() bool {
	return true
}
