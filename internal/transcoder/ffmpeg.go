package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const waitDelay = 5 * time.Second

// FFmpegConfig holds configuration for the FFmpeg transcoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// VideoCodec is the video codec to use.
	// Default: libx264 (required for the baseline profile)
	VideoCodec string

	// VideoProfile and VideoLevel select the H.264 profile/level.
	// Default: baseline / 3.0, playable on practically every device.
	VideoProfile string
	VideoLevel   string

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// HLSSegmentDuration is the target duration of each HLS segment in seconds.
	// Default: 10
	HLSSegmentDuration int

	// HLSPlaylistType sets the playlist type.
	// "vod" keeps every segment and adds EXT-X-ENDLIST.
	HLSPlaylistType string

	// StartNumber is the media sequence number of the first segment.
	StartNumber int

	// StderrTailBytes bounds how much ffmpeg diagnostic output is kept for error messages.
	StderrTailBytes int
}

// DefaultFFmpegConfig returns the fixed transcode profile used for every upload.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:         "ffmpeg",
		VideoCodec:         "libx264",
		VideoProfile:       "baseline",
		VideoLevel:         "3.0",
		AudioCodec:         "aac",
		HLSSegmentDuration: 10,
		HLSPlaylistType:    "vod",
		StartNumber:        0,
		StderrTailBytes:    4096,
	}
}

// FFmpegTranscoder implements Transcoder using FFmpeg CLI.
type FFmpegTranscoder struct {
	config FFmpegConfig
}

// Compile-time verification that FFmpegTranscoder implements Transcoder.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// NewFFmpegTranscoder creates a new FFmpeg-based transcoder.
func NewFFmpegTranscoder(cfg FFmpegConfig) *FFmpegTranscoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{
		config: cfg,
	}
}

// TranscodeToHLS converts the input video to HLS format using FFmpeg.
// It executes FFmpeg as a subprocess, waits for it to exit and fsyncs the output.
func (t *FFmpegTranscoder) TranscodeToHLS(ctx context.Context, inputPath, outputDir string) (*HLSOutput, error) {
	if err := t.validateInput(inputPath); err != nil {
		return nil, err
	}

	if err := t.validateOutputDir(outputDir); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(outputDir, ManifestName)
	segmentPattern := filepath.Join(outputDir, "segment_%03d.ts")

	args := t.buildFFmpegArgs(inputPath, manifestPath, segmentPattern)

	stderr := newTailBuffer(t.config.StderrTailBytes)
	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, args...)
	cmd.Stdout = nil // Discard stdout
	cmd.Stderr = stderr
	// Bound the wait for stderr to drain if ffmpeg is killed but a child keeps the pipe open.
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transcoding cancelled: %w", ctx.Err())
		}
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("ffmpeg execution failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	segments, err := t.collectSegments(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to collect segments: %w", err)
	}

	if err := syncFiles(append([]string{manifestPath}, segments...)); err != nil {
		return nil, fmt.Errorf("failed to flush output: %w", err)
	}

	return &HLSOutput{
		ManifestPath: manifestPath,
		SegmentPaths: segments,
	}, nil
}

// validateInput checks if the input file exists and is readable.
func (t *FFmpegTranscoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func (t *FFmpegTranscoder) validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", outputDir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

// buildFFmpegArgs constructs the FFmpeg command arguments.
func (t *FFmpegTranscoder) buildFFmpegArgs(inputPath, manifestPath, segmentPattern string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-c:v", t.config.VideoCodec,
		"-profile:v", t.config.VideoProfile,
		"-level", t.config.VideoLevel,
		"-c:a", t.config.AudioCodec,
		"-start_number", fmt.Sprintf("%d", t.config.StartNumber),
		"-hls_time", fmt.Sprintf("%d", t.config.HLSSegmentDuration),
		"-hls_list_size", "0", // Include all segments in playlist
		"-hls_playlist_type", t.config.HLSPlaylistType,
		"-hls_segment_filename", segmentPattern,
		"-f", "hls",
		"-y", // Overwrite output files without asking
		manifestPath,
	}
}

// collectSegments finds all generated .ts segment files in the output directory.
func (t *FFmpegTranscoder) collectSegments(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".ts") {
			segments = append(segments, filepath.Join(outputDir, entry.Name()))
		}
	}

	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	sort.Strings(segments)
	return segments, nil
}

// syncFiles fsyncs each path so the package is on disk before completion is reported.
func syncFiles(paths []string) error {
	var errs []error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", filepath.Base(p), err))
		}
		_ = f.Close()
	}
	return errors.Join(errs...)
}
