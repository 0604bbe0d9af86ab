package repository

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when attempting to create a job that already exists.
	ErrDuplicateJob = errors.New("job already exists")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNotFound is returned when an object does not exist in the store.
	ErrObjectNotFound = errors.New("object not found")
)
