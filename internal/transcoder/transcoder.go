package transcoder

import (
	"context"
	"errors"
)

// ManifestName is the file name of the HLS playlist written into the output directory.
const ManifestName = "index.m3u8"

// ErrNoSegments is returned when the transcoder exits cleanly but produced no segments.
var ErrNoSegments = errors.New("no segments generated in output directory")

// HLSOutput contains the result of an HLS transcoding operation.
type HLSOutput struct {
	// ManifestPath is the path to the generated .m3u8 manifest file.
	ManifestPath string
	// SegmentPaths contains paths to all generated .ts segment files.
	SegmentPaths []string
}

// Transcoder defines the interface for video transcoding operations.
type Transcoder interface {
	// TranscodeToHLS converts an input video file to a VOD HLS package.
	// It writes ManifestName and its segment files into outputDir.
	//
	// The call returns only after the transcoder process has exited and every
	// produced file has been flushed to disk, so a nil error means the
	// package is complete. Cancelling ctx kills the process.
	//
	// The output directory must exist before calling this method.
	TranscodeToHLS(ctx context.Context, inputPath, outputDir string) (*HLSOutput, error)
}
