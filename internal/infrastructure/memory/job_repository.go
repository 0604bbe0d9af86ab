// Package memory provides an in-process job store used when no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
)

// DefaultRetention is how long terminal jobs are kept.
const DefaultRetention = 24 * time.Hour

// JobRepository implements repository.JobRepository in memory.
// Terminal jobs are evicted once they are older than the retention window.
type JobRepository struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]model.Job
	retention time.Duration
	now       func() time.Time
}

var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates an empty in-memory job store.
func NewJobRepository(retention time.Duration) *JobRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &JobRepository{
		jobs:      make(map[uuid.UUID]model.Job),
		retention: retention,
		now:       time.Now,
	}
}

// Create stores a copy of job.
func (r *JobRepository) Create(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked()

	if _, ok := r.jobs[job.ID]; ok {
		return repository.ErrDuplicateJob
	}
	r.jobs[job.ID] = *job
	return nil
}

// GetByID returns a copy of the stored job.
func (r *JobRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok || r.expired(job) {
		return nil, repository.ErrJobNotFound
	}
	return &job, nil
}

// Update replaces the stored copy of job.
func (r *JobRepository) Update(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return repository.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

// Len returns the number of stored jobs, expired ones included until the next eviction.
func (r *JobRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *JobRepository) expired(job model.Job) bool {
	return job.IsTerminal() && r.now().Sub(job.UpdatedAt) > r.retention
}

func (r *JobRepository) evictLocked() {
	for id, job := range r.jobs {
		if r.expired(job) {
			delete(r.jobs, id)
		}
	}
}
