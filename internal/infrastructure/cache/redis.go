package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	// jobCacheKeyPrefix is the prefix for job cache keys in Redis.
	jobCacheKeyPrefix = "job:"
)

// jobJSON is the JSON representation of a Job for caching.
// Local paths are not cached; readers only need the public view.
type jobJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SourceName  string `json:"source_name"`
	State       string `json:"state"`
	PlaybackURL string `json:"playback_url"`
	Error       string `json:"error"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// RedisJobCache implements JobCache using Redis as the backing store.
type RedisJobCache struct {
	client *redis.Client
}

var _ JobCache = (*RedisJobCache)(nil)

// NewRedisJobCache creates a new Redis-backed job cache.
func NewRedisJobCache(client *redis.Client) *RedisJobCache {
	return &RedisJobCache{
		client: client,
	}
}

// Get retrieves a job from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	data, err := c.client.Get(ctx, c.buildKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			record(metrics.CacheOpGet, metrics.CacheStatusMiss)
			return nil, nil
		}
		record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	job, err := c.deserialize(data)
	if err != nil {
		record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("deserialize job: %w", err)
	}

	record(metrics.CacheOpGet, metrics.CacheStatusHit)
	return job, nil
}

// Set stores a job in Redis cache with the specified TTL.
func (c *RedisJobCache) Set(ctx context.Context, job *model.Job, ttl time.Duration) error {
	data, err := c.serialize(job)
	if err != nil {
		record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("serialize job: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(job.ID), data, ttl).Err(); err != nil {
		record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("redis set: %w", err)
	}

	record(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}

// Delete removes a job from Redis cache.
func (c *RedisJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	if err := c.client.Del(ctx, c.buildKey(jobID)).Err(); err != nil {
		record(metrics.CacheOpDelete, metrics.CacheStatusError)
		return fmt.Errorf("redis del: %w", err)
	}

	record(metrics.CacheOpDelete, metrics.CacheStatusSuccess)
	return nil
}

// Ping verifies the Redis connection is alive.
func (c *RedisJobCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// buildKey constructs the Redis key for a job.
func (c *RedisJobCache) buildKey(jobID uuid.UUID) string {
	return jobCacheKeyPrefix + jobID.String()
}

// serialize converts a Job to JSON bytes.
func (c *RedisJobCache) serialize(job *model.Job) ([]byte, error) {
	v := jobJSON{
		ID:          job.ID.String(),
		Title:       job.Title,
		SourceName:  job.SourceName,
		State:       string(job.State),
		PlaybackURL: job.PlaybackURL,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(v)
}

// deserialize converts JSON bytes to a Job.
func (c *RedisJobCache) deserialize(data []byte) (*model.Job, error) {
	var v jobJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID: %w", err)
	}

	state := model.State(v.State)
	if !state.IsValid() {
		return nil, fmt.Errorf("invalid job state %q", v.State)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &model.Job{
		ID:          id,
		Title:       v.Title,
		SourceName:  v.SourceName,
		State:       state,
		PlaybackURL: v.PlaybackURL,
		Error:       v.Error,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func record(op, status string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, metrics.CacheTypeRedis).Inc()
}
