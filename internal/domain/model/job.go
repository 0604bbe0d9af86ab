package model

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// State represents the pipeline stage a job has reached.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateTranscoding     State = "TRANSCODING"
	StateTranscoded      State = "TRANSCODED"
	StateTranscodeFailed State = "TRANSCODE_FAILED"
	StateVerifying       State = "VERIFYING"
	StateVerified        State = "VERIFIED"
	StateVerifyFailed    State = "VERIFY_FAILED"
	StatePublishing      State = "PUBLISHING"
	StatePublished       State = "PUBLISHED"
	StatePublishFailed   State = "PUBLISH_FAILED"
)

// validTransitions follows RECEIVED -> TRANSCODING -> TRANSCODED -> VERIFYING ->
// VERIFIED -> PUBLISHING -> PUBLISHED. Each in-progress state may instead end in
// its own failure state.
var validTransitions = map[State][]State{
	StateReceived:        {StateTranscoding},
	StateTranscoding:     {StateTranscoded, StateTranscodeFailed},
	StateTranscoded:      {StateVerifying},
	StateVerifying:       {StateVerified, StateVerifyFailed},
	StateVerified:        {StatePublishing},
	StatePublishing:      {StatePublished, StatePublishFailed},
	StateTranscodeFailed: {},
	StateVerifyFailed:    {},
	StatePublished:       {},
	StatePublishFailed:   {},
}

func (s State) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s State) CanTransitionTo(next State) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s State) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	return exists && len(allowed) == 0
}

// IsFailure reports whether s is one of the failed terminal states.
func (s State) IsFailure() bool {
	switch s {
	case StateTranscodeFailed, StateVerifyFailed, StatePublishFailed:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

// Job is one end-to-end processing of a single uploaded video.
type Job struct {
	ID          uuid.UUID
	Title       string
	SourceName  string
	InputPath   string
	OutputDir   string
	State       State
	PlaybackURL string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var (
	ErrEmptySourceName   = errors.New("source file name cannot be empty")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTitleTooLong      = errors.New("title exceeds maximum length of 255 characters")
)

const maxTitleLength = 255

// NewJob creates a Job in RECEIVED state. When title is empty the source
// file name is used as the display label, cut to maxTitleLength bytes on a
// rune boundary. An explicit title over the limit is rejected.
//
// IDs are UUIDv7: a millisecond timestamp followed by a per-process
// monotonic sequence and random bits, so jobs created in the same
// millisecond still get distinct output directories and key prefixes.
func NewJob(title, sourceName string) (*Job, error) {
	if sourceName == "" {
		return nil, ErrEmptySourceName
	}
	if title == "" {
		title = truncateLabel(sourceName, maxTitleLength)
	}
	if len(title) > maxTitleLength {
		return nil, ErrTitleTooLong
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	now := time.Now()
	return &Job{
		ID:         id,
		Title:      title,
		SourceName: sourceName,
		State:      StateReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func truncateLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 {
		if r, size := utf8.DecodeLastRuneInString(s); r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// TransitionTo attempts to move the job to the next state.
// Returns ErrInvalidTransition if the edge is not part of the pipeline.
func (j *Job) TransitionTo(next State) error {
	if !next.IsValid() || !j.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	j.State = next
	j.UpdatedAt = time.Now()
	return nil
}

// Fail moves the job into the given failed state and records the reason.
func (j *Job) Fail(state State, reason error) error {
	if !state.IsFailure() {
		return fmt.Errorf("%w: %s is not a failure state", ErrInvalidTransition, state)
	}
	if err := j.TransitionTo(state); err != nil {
		return err
	}
	if reason != nil {
		j.Error = reason.Error()
	}
	return nil
}

// SetPlaybackURL records the playable URL once publishing succeeds.
func (j *Job) SetPlaybackURL(url string) {
	j.PlaybackURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true once the job reached Published or a failed state.
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}
