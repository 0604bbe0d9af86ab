package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
)

// JobService defines the read side of upload jobs.
type JobService interface {
	// GetJob retrieves a job by ID.
	// Returns repository.ErrJobNotFound if the job does not exist.
	GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error)
}

type jobService struct {
	repo repository.JobRepository
}

// NewJobService creates a new JobService instance.
func NewJobService(repo repository.JobRepository) JobService {
	return &jobService{repo: repo}
}

// GetJob retrieves job information by ID.
func (s *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	return s.repo.GetByID(ctx, jobID)
}
