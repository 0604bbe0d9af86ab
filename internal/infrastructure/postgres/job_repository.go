package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/metrics"
)

// schema creates the jobs table on first start.
const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id           UUID PRIMARY KEY,
		title        TEXT NOT NULL,
		source_name  TEXT NOT NULL,
		input_path   TEXT,
		output_dir   TEXT,
		state        TEXT NOT NULL,
		playback_url TEXT,
		error        TEXT,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)
`

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepository implements repository.JobRepository using PostgreSQL.
type JobRepository struct {
	db DBTX
}

// Compile-time verification that JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the jobs table if it does not exist.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}
	return nil
}

// Create persists a new job.
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	const query = `
		INSERT INTO jobs (id, title, source_name, input_path, output_dir, state, playback_url, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableJobs).Inc()
	_, err := r.db.Exec(ctx, query,
		job.ID,
		job.Title,
		job.SourceName,
		nullString(job.InputPath),
		nullString(job.OutputDir),
		job.State.String(),
		nullString(job.PlaybackURL),
		nullString(job.Error),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its unique identifier.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	const query = `
		SELECT id, title, source_name, input_path, output_dir, state, playback_url, error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableJobs).Inc()
	job, err := r.scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}

	return job, nil
}

// Update persists the job's state, URL and error.
func (r *JobRepository) Update(ctx context.Context, job *model.Job) error {
	const query = `
		UPDATE jobs
		SET state = $2, playback_url = $3, error = $4, updated_at = $5
		WHERE id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableJobs).Inc()
	tag, err := r.db.Exec(ctx, query,
		job.ID,
		job.State.String(),
		nullString(job.PlaybackURL),
		nullString(job.Error),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// scanJob scans a single row into a Job model.
func (r *JobRepository) scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job         model.Job
		state       string
		inputPath   *string
		outputDir   *string
		playbackURL *string
		errMsg      *string
	)

	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.SourceName,
		&inputPath,
		&outputDir,
		&state,
		&playbackURL,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = model.State(state)
	job.InputPath = derefString(inputPath)
	job.OutputDir = derefString(outputDir)
	job.PlaybackURL = derefString(playbackURL)
	job.Error = derefString(errMsg)

	return &job, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
