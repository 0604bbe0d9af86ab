package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
	"github.com/hszk-dev/hlspublish/internal/transcoder"
)

// mockJobRepository records every state the pipeline persisted.
type mockJobRepository struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]model.Job
	history map[uuid.UUID][]model.State

	createFn  func(ctx context.Context, job *model.Job) error
	getByIDFn func(ctx context.Context, id uuid.UUID) (*model.Job, error)
	updateFn  func(ctx context.Context, job *model.Job) error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		jobs:    make(map[uuid.UUID]model.Job),
		history: make(map[uuid.UUID][]model.State),
	}
}

func (m *mockJobRepository) Create(ctx context.Context, job *model.Job) error {
	if m.createFn != nil {
		return m.createFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	m.history[job.ID] = append(m.history[job.ID], job.State)
	return nil
}

func (m *mockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return &job, nil
}

func (m *mockJobRepository) Update(ctx context.Context, job *model.Job) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	m.history[job.ID] = append(m.history[job.ID], job.State)
	return nil
}

func (m *mockJobRepository) states(id uuid.UUID) []model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.State(nil), m.history[id]...)
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
// Without overrides it keeps uploaded objects in memory.
type mockObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    map[string]repository.UploadOptions
	public  map[string]bool

	uploadFn     func(ctx context.Context, key string, reader io.Reader, size int64, opts repository.UploadOptions) error
	makePublicFn func(ctx context.Context, key string) error
}

func newMockObjectStorage() *mockObjectStorage {
	return &mockObjectStorage{
		objects: make(map[string][]byte),
		opts:    make(map[string]repository.UploadOptions),
		public:  make(map[string]bool),
	}
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, opts repository.UploadOptions) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, size, opts)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.opts[key] = opts
	return nil
}

func (m *mockObjectStorage) MakePublic(ctx context.Context, key string) error {
	if m.makePublicFn != nil {
		return m.makePublicFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return repository.ErrObjectNotFound
	}
	m.public[key] = true
	return nil
}

func (m *mockObjectStorage) PublicURL(key string) string {
	return "https://cdn.example.com/videos/" + key
}

func (m *mockObjectStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// mockTranscoder provides a configurable mock for Transcoder.
type mockTranscoder struct {
	mu    sync.Mutex
	calls int

	transcodeToHLSFn func(ctx context.Context, inputPath, outputDir string) (*transcoder.HLSOutput, error)
}

func (m *mockTranscoder) TranscodeToHLS(ctx context.Context, inputPath, outputDir string) (*transcoder.HLSOutput, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.transcodeToHLSFn != nil {
		return m.transcodeToHLSFn(ctx, inputPath, outputDir)
	}
	return nil, nil
}

func (m *mockTranscoder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockEventPublisher captures published job events.
type mockEventPublisher struct {
	mu     sync.Mutex
	events []repository.JobEvent

	publishFn func(ctx context.Context, event repository.JobEvent) error
}

func (m *mockEventPublisher) PublishJobEvent(ctx context.Context, event repository.JobEvent) error {
	if m.publishFn != nil {
		return m.publishFn(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventPublisher) Close() error {
	return nil
}

func (m *mockEventPublisher) published() []repository.JobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.JobEvent(nil), m.events...)
}

// mockJobCache is a mock implementation of cache.JobCache for testing.
type mockJobCache struct {
	mu       sync.RWMutex
	data     map[uuid.UUID]*model.Job
	getFn    func(ctx context.Context, jobID uuid.UUID) (*model.Job, error)
	setFn    func(ctx context.Context, job *model.Job, ttl time.Duration) error
	deleteFn func(ctx context.Context, jobID uuid.UUID) error
}

func newMockJobCache() *mockJobCache {
	return &mockJobCache{
		data: make(map[uuid.UUID]*model.Job),
	}
}

func (m *mockJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	if m.getFn != nil {
		return m.getFn(ctx, jobID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[jobID], nil
}

func (m *mockJobCache) Set(ctx context.Context, job *model.Job, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, job, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[job.ID] = job
	return nil
}

func (m *mockJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, jobID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, jobID)
	return nil
}

func (m *mockJobCache) has(jobID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[jobID]
	return ok
}
