package usecase

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an error originated from.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageTranscode Stage = "transcode"
	StageVerify    Stage = "verify"
	StagePublish   Stage = "publish"
)

var (
	// ErrNoFile is returned when a request carries no video file.
	ErrNoFile = errors.New("no file uploaded")

	// ErrInvalidUpload is returned when the upload metadata is unacceptable, e.g. an over-long title.
	ErrInvalidUpload = errors.New("invalid upload")

	// ErrIngestFailure is returned when the upload could not be staged on local disk.
	ErrIngestFailure = errors.New("failed to stage upload")

	// ErrTranscodeFailure is returned when the transcoder failed or timed out.
	ErrTranscodeFailure = errors.New("transcode failed")

	// ErrVerificationFailure is returned when the manifest is missing after the transcoder reported completion.
	ErrVerificationFailure = errors.New("manifest verification failed")

	// ErrUploadFailure is returned when any file of the HLS package could not be published.
	ErrUploadFailure = errors.New("upload failed")
)

// StageError describes a pipeline failure: the stage, the file involved (if any)
// and the cause. errors.Is matches both the stage's sentinel kind and the cause.
type StageError struct {
	Stage Stage
	Path  string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	msg := string(e.Stage) + ": " + e.Kind.Error()
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newStageError builds a StageError with the sentinel kind belonging to stage.
func newStageError(stage Stage, path string, err error) *StageError {
	return &StageError{
		Stage: stage,
		Path:  path,
		Kind:  stageKind(stage),
		Err:   err,
	}
}

func stageKind(stage Stage) error {
	switch stage {
	case StageTranscode:
		return ErrTranscodeFailure
	case StageVerify:
		return ErrVerificationFailure
	case StagePublish:
		return ErrUploadFailure
	default:
		return ErrIngestFailure
	}
}
