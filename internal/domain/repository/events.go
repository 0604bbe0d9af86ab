package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobEvent is emitted once a job reaches a terminal state.
type JobEvent struct {
	JobID      uuid.UUID `json:"job_id"`
	Title      string    `json:"title"`
	State      string    `json:"state"`
	URL        string    `json:"url,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher announces job lifecycle events to interested consumers.
type EventPublisher interface {
	// PublishJobEvent sends a terminal job event.
	PublishJobEvent(ctx context.Context, event JobEvent) error

	// Close releases the underlying connection.
	Close() error
}

// NopEventPublisher discards every event. Used when no broker is configured.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishJobEvent(context.Context, JobEvent) error { return nil }

func (NopEventPublisher) Close() error { return nil }
