package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/hlspublish/internal/domain/model"
)

// JobRepository defines the interface for job persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type JobRepository interface {
	// Create persists a new job.
	// Returns ErrDuplicateJob if a job with the same ID already exists.
	Create(ctx context.Context, job *model.Job) error

	// GetByID retrieves a job by its unique identifier.
	// Returns nil and ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error)

	// Update persists the job's current state, URL and error.
	// Returns ErrJobNotFound if the job does not exist.
	Update(ctx context.Context, job *model.Job) error
}
