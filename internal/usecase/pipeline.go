package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
	"github.com/hszk-dev/hlspublish/internal/infrastructure/metrics"
	"github.com/hszk-dev/hlspublish/internal/transcoder"
)

const (
	// DefaultTranscodeTimeout bounds a single ffmpeg run.
	DefaultTranscodeTimeout = 30 * time.Minute

	maxExtLength = 16
)

// PipelineConfig holds configuration for the upload pipeline.
type PipelineConfig struct {
	// ScratchDir receives the uploaded input file, one file per job.
	ScratchDir string
	// OutputRoot holds one HLS output directory per job.
	OutputRoot string
	// TranscodeTimeout bounds the transcoder; zero disables the bound.
	TranscodeTimeout time.Duration
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ScratchDir:       filepath.Join(os.TempDir(), "hlspublish", "uploads"),
		OutputRoot:       "hls",
		TranscodeTimeout: DefaultTranscodeTimeout,
	}
}

// UploadInput is a single uploaded video as received by the ingress handler.
type UploadInput struct {
	// Title is the display label; the file name is used when empty.
	Title string
	// FileName is the client-supplied name of the uploaded file.
	FileName string
	// Body streams the file contents.
	Body io.Reader
}

// PublishResult is the outcome of a successful upload.
type PublishResult struct {
	Job   *model.Job
	URL   string
	Title string
}

// UploadService runs an uploaded video through transcode, verification and publish.
type UploadService interface {
	// Upload stages the input, transcodes it to HLS, publishes the package and
	// returns its playable URL. Failures are *StageError values.
	Upload(ctx context.Context, input UploadInput) (*PublishResult, error)

	// Drain blocks until every in-flight Upload has returned, or ctx is done.
	// Cancelling the contexts passed to Upload makes them return promptly
	// after their cleanup has run.
	Drain(ctx context.Context) error
}

// CacheInvalidator drops cached job state after the pipeline changed it.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, jobID uuid.UUID) error
}

type uploadService struct {
	transcoder  transcoder.Transcoder
	publisher   Publisher
	repo        repository.JobRepository
	events      repository.EventPublisher
	invalidator CacheInvalidator
	inflight    sync.WaitGroup

	scratchDir       string
	outputRoot       string
	transcodeTimeout time.Duration
}

// NewUploadService creates a new UploadService instance.
// invalidator may be nil when job lookups are not cached.
func NewUploadService(
	tc transcoder.Transcoder,
	publisher Publisher,
	repo repository.JobRepository,
	events repository.EventPublisher,
	invalidator CacheInvalidator,
	cfg PipelineConfig,
) UploadService {
	if events == nil {
		events = repository.NopEventPublisher{}
	}
	return &uploadService{
		transcoder:       tc,
		publisher:        publisher,
		repo:             repo,
		events:           events,
		invalidator:      invalidator,
		scratchDir:       cfg.ScratchDir,
		outputRoot:       cfg.OutputRoot,
		transcodeTimeout: cfg.TranscodeTimeout,
	}
}

// Upload runs the pipeline stages strictly in order. Every terminal state
// removes the scratch input; the output directory is removed too unless the
// publisher serves it from disk and the job was published.
func (s *uploadService) Upload(ctx context.Context, input UploadInput) (*PublishResult, error) {
	if input.Body == nil || input.FileName == "" {
		return nil, &StageError{Stage: StageIngest, Kind: ErrNoFile}
	}

	job, err := model.NewJob(input.Title, filepath.Base(input.FileName))
	if err != nil {
		return nil, &StageError{Stage: StageIngest, Kind: ErrInvalidUpload, Err: err}
	}

	s.inflight.Add(1)
	defer s.inflight.Done()
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	logger := slog.With("job_id", job.ID)

	start := time.Now()
	if err := s.stageInput(job, input.Body); err != nil {
		s.cleanup(job, false)
		metrics.JobsTotal.WithLabelValues(metrics.OutcomeIngestFailed).Inc()
		logger.Error("failed to stage upload", "stage", StageIngest, "error", err)
		return nil, newStageError(StageIngest, job.InputPath, err)
	}
	observeStage(StageIngest, start)
	s.createRecord(ctx, job)
	logger.Info("upload received",
		"stage", StageIngest,
		"title", job.Title,
		"source", job.SourceName,
	)

	if err := s.transcode(ctx, job, logger); err != nil {
		return nil, err
	}
	if err := s.verify(ctx, job, logger); err != nil {
		return nil, err
	}
	url, err := s.publish(ctx, job, logger)
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		Job:   job,
		URL:   url,
		Title: job.Title,
	}, nil
}

func (s *uploadService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transcode runs the transcoder under the configured timeout. Expiry kills
// the ffmpeg process and counts as a transcode failure.
func (s *uploadService) transcode(ctx context.Context, job *model.Job, logger *slog.Logger) error {
	if err := s.advance(ctx, job, model.StateTranscoding); err != nil {
		return err
	}
	logger.Info("transcoding started", "stage", StageTranscode)

	tctx := ctx
	if s.transcodeTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.transcodeTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.transcoder.TranscodeToHLS(tctx, job.InputPath, job.OutputDir)
	observeStage(StageTranscode, start)
	if err != nil {
		stageErr := newStageError(StageTranscode, job.InputPath, err)
		s.fail(ctx, job, model.StateTranscodeFailed, stageErr, logger, "transcoding failed")
		return stageErr
	}

	if err := s.advance(ctx, job, model.StateTranscoded); err != nil {
		return err
	}
	logger.Info("transcoding completed",
		"stage", StageTranscode,
		"segments", len(out.SegmentPaths),
		"duration", time.Since(start),
	)
	return nil
}

// verify checks that the manifest exists now that the transcoder reported
// completion. There is no polling: a missing manifest is a failure.
func (s *uploadService) verify(ctx context.Context, job *model.Job, logger *slog.Logger) error {
	if err := s.advance(ctx, job, model.StateVerifying); err != nil {
		return err
	}

	start := time.Now()
	manifestPath := filepath.Join(job.OutputDir, transcoder.ManifestName)
	info, err := os.Stat(manifestPath)
	if err == nil && info.IsDir() {
		err = fmt.Errorf("manifest is a directory")
	}
	observeStage(StageVerify, start)
	if err != nil {
		stageErr := newStageError(StageVerify, manifestPath, err)
		s.fail(ctx, job, model.StateVerifyFailed, stageErr, logger, "manifest missing after transcode")
		return stageErr
	}

	return s.advance(ctx, job, model.StateVerified)
}

// publish hands the verified package to the publisher and finalizes the job.
func (s *uploadService) publish(ctx context.Context, job *model.Job, logger *slog.Logger) (string, error) {
	if err := s.advance(ctx, job, model.StatePublishing); err != nil {
		return "", err
	}
	logger.Info("publishing started", "stage", StagePublish)

	start := time.Now()
	url, err := s.publisher.Publish(ctx, job)
	observeStage(StagePublish, start)
	if err != nil {
		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			stageErr = newStageError(StagePublish, "", err)
		}
		s.fail(ctx, job, model.StatePublishFailed, stageErr, logger, "publishing failed")
		return "", stageErr
	}

	job.SetPlaybackURL(url)
	if err := job.TransitionTo(model.StatePublished); err != nil {
		s.cleanup(job, false)
		return "", newStageError(StagePublish, "", err)
	}
	s.cleanup(job, s.publisher.RetainsOutput())
	s.finish(ctx, job)

	metrics.JobsTotal.WithLabelValues(metrics.OutcomePublished).Inc()
	logger.Info("job published", "stage", StagePublish, "url", url)
	return url, nil
}

// stageInput streams body into <scratch>/<jobID><ext> and creates the job's
// output directory. Both paths are derived from the job ID, so concurrent
// jobs never share them.
func (s *uploadService) stageInput(job *model.Job, body io.Reader) error {
	id := job.ID.String()
	job.InputPath = filepath.Join(s.scratchDir, id+safeExt(job.SourceName))
	job.OutputDir = filepath.Join(s.outputRoot, id)

	f, err := os.OpenFile(job.InputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close scratch file: %w", err)
	}

	if err := os.Mkdir(job.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

// advance moves the job to next and records it.
func (s *uploadService) advance(ctx context.Context, job *model.Job, next model.State) error {
	if err := job.TransitionTo(next); err != nil {
		s.cleanup(job, false)
		return newStageError(stageOf(next), "", err)
	}
	s.updateRecord(ctx, job)
	return nil
}

// fail moves the job into a failed state, releases its files and announces it.
func (s *uploadService) fail(ctx context.Context, job *model.Job, state model.State, cause *StageError, logger *slog.Logger, msg string) {
	if err := job.Fail(state, cause); err != nil {
		logger.Error("failed to record failure state", "state", state, "error", err)
	}
	s.cleanup(job, false)
	s.finish(ctx, job)

	metrics.JobsTotal.WithLabelValues(outcomeOf(state)).Inc()
	logger.Error(msg,
		"stage", cause.Stage,
		"path", cause.Path,
		"error", cause.Err,
	)
}

// finish records a terminal job and publishes its event. Failures here are
// logged only; they never change the job outcome.
func (s *uploadService) finish(ctx context.Context, job *model.Job) {
	s.updateRecord(ctx, job)

	ctx = context.WithoutCancel(ctx)
	event := repository.JobEvent{
		JobID:      job.ID,
		Title:      job.Title,
		State:      job.State.String(),
		URL:        job.PlaybackURL,
		Error:      job.Error,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishJobEvent(ctx, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(metrics.StatusError).Inc()
		slog.Warn("failed to publish job event",
			"job_id", job.ID,
			"state", job.State,
			"error", err,
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(metrics.StatusSuccess).Inc()
}

func (s *uploadService) createRecord(ctx context.Context, job *model.Job) {
	if err := s.repo.Create(context.WithoutCancel(ctx), job); err != nil {
		slog.Warn("failed to record job",
			"job_id", job.ID,
			"error", err,
		)
	}
}

func (s *uploadService) updateRecord(ctx context.Context, job *model.Job) {
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.Update(ctx, job); err != nil {
		slog.Warn("failed to update job record",
			"job_id", job.ID,
			"state", job.State,
			"error", err,
		)
	}
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateCache(ctx, job.ID); err != nil {
			slog.Warn("failed to invalidate job cache",
				"job_id", job.ID,
				"error", err,
			)
		}
	}
}

// cleanup removes the scratch input and, unless keepOutput, the output directory.
func (s *uploadService) cleanup(job *model.Job, keepOutput bool) {
	if job.InputPath != "" {
		if err := os.Remove(job.InputPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove scratch input",
				"job_id", job.ID,
				"path", job.InputPath,
				"error", err,
			)
		}
	}
	if !keepOutput && job.OutputDir != "" {
		if err := os.RemoveAll(job.OutputDir); err != nil {
			slog.Warn("failed to remove output directory",
				"job_id", job.ID,
				"path", job.OutputDir,
				"error", err,
			)
		}
	}
}

func observeStage(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

// safeExt keeps a short, plain extension of the uploaded file name for the
// scratch file; anything else is dropped.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func stageOf(state model.State) Stage {
	switch state {
	case model.StateTranscoding, model.StateTranscoded, model.StateTranscodeFailed:
		return StageTranscode
	case model.StateVerifying, model.StateVerified, model.StateVerifyFailed:
		return StageVerify
	default:
		return StagePublish
	}
}

func outcomeOf(state model.State) string {
	switch state {
	case model.StateTranscodeFailed:
		return metrics.OutcomeTranscodeFailed
	case model.StateVerifyFailed:
		return metrics.OutcomeVerifyFailed
	default:
		return metrics.OutcomePublishFailed
	}
}
