package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/hlspublish/internal/api/handler"
	"github.com/hszk-dev/hlspublish/internal/config"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/cache"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/memory"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/postgres"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/queue"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/storage"
	"github.com/hszk-dev/hlspublish/internal/transcoder"
	"github.com/hszk-dev/hlspublish/internal/usecase"
)

// app holds the services behind the router and the resources to release on exit.
type app struct {
	uploads usecase.UploadService
	jobs    usecase.JobService
	checks  map[string]handler.HealthCheck
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{checks: make(map[string]handler.HealthCheck)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	for _, dir := range []string{cfg.Pipeline.ScratchDir, cfg.Pipeline.HLSDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	publisher, err := newPublisher(ctx, cfg, a, logger)
	if err != nil {
		return nil, err
	}

	repo, err := newJobRepository(ctx, cfg, a, logger)
	if err != nil {
		return nil, err
	}

	events, err := newEventPublisher(ctx, cfg, a, logger)
	if err != nil {
		return nil, err
	}

	a.jobs = usecase.NewJobService(repo)
	var invalidator usecase.CacheInvalidator
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, redisClient.Close)

		jobCache := cache.NewRedisJobCache(redisClient)
		if err := jobCache.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.checks["redis"] = jobCache.Ping
		logger.Info("connected to Redis")

		cached := usecase.NewCachedJobService(a.jobs, jobCache, usecase.CachedJobServiceConfig{
			CacheTTL: cfg.Redis.CacheTTL,
		})
		a.jobs = cached
		invalidator = cached
	}

	tcCfg := transcoder.DefaultFFmpegConfig()
	tcCfg.FFmpegPath = cfg.Pipeline.FFmpegPath

	a.uploads = usecase.NewUploadService(
		transcoder.NewFFmpegTranscoder(tcCfg),
		publisher,
		repo,
		events,
		invalidator,
		usecase.PipelineConfig{
			ScratchDir:       cfg.Pipeline.ScratchDir,
			OutputRoot:       cfg.Pipeline.HLSDir,
			TranscodeTimeout: cfg.Pipeline.TranscodeTimeout,
		},
	)
	return a, nil
}

func newPublisher(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) (usecase.Publisher, error) {
	pubCfg := usecase.ObjectPublisherConfig{
		Prefix:       strings.Trim(cfg.Storage.Prefix, "/"),
		Concurrency:  cfg.Pipeline.UploadConcurrency,
		CacheControl: usecase.DefaultCacheControl,
	}

	switch cfg.Storage.Driver {
	case config.StorageMinIO:
		client, err := storage.NewClient(ctx, storage.ClientConfig{
			Endpoint:      cfg.MinIO.Endpoint,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			AccessKey:     cfg.MinIO.AccessKey,
			SecretKey:     cfg.MinIO.SecretKey,
			Bucket:        cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		if err := client.EnsurePublicPolicy(ctx, pubCfg.Prefix); err != nil {
			return nil, err
		}
		a.checks["storage"] = client.Ping
		logger.Info("connected to MinIO", slog.String("bucket", client.Bucket()))
		return usecase.NewObjectPublisher(client, pubCfg), nil

	case config.StorageS3:
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			Endpoint:      cfg.S3.Endpoint,
			UsePathStyle:  cfg.S3.UsePathStyle,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to S3: %w", err)
		}
		a.checks["storage"] = client.Ping
		logger.Info("connected to S3", slog.String("bucket", client.Bucket()))
		return usecase.NewObjectPublisher(client, pubCfg), nil

	default:
		logger.Info("object storage disabled, serving HLS locally", slog.String("dir", cfg.Pipeline.HLSDir))
		return usecase.NewLocalPublisher(cfg.Server.PublicBaseURL), nil
	}
}

func newJobRepository(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) (repository.JobRepository, error) {
	if !cfg.Database.Enabled {
		return memory.NewJobRepository(memory.DefaultRetention), nil
	}

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pgClient.Close()
		return nil
	})
	a.checks["postgres"] = pgClient.Ping

	repo, err := pgClient.JobRepository(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to PostgreSQL")
	return repo, nil
}

func newEventPublisher(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) (repository.EventPublisher, error) {
	if !cfg.RabbitMQ.Enabled {
		return repository.NopEventPublisher{}, nil
	}

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.Exchange = cfg.RabbitMQ.Exchange
	queueCfg.Queue = cfg.RabbitMQ.Queue

	client, err := queue.NewClient(ctx, queueCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	logger.Info("connected to RabbitMQ", slog.String("exchange", queueCfg.Exchange))
	return client, nil
}
