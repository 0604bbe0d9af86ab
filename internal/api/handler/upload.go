package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hszk-dev/hlspublish/internal/usecase"
)

const (
	// FileField is the multipart form field carrying the video.
	FileField = "video"
	// TitleField is the optional multipart form field carrying the display label.
	TitleField = "title"

	maxTitleBytes = 1024
)

// UploadResponse is returned once the HLS package is playable.
type UploadResponse struct {
	Src   string `json:"src"`
	Title string `json:"title"`
	JobID string `json:"job_id"`
}

// UploadHandler accepts a single video upload and runs it through the pipeline.
type UploadHandler struct {
	svc      usecase.UploadService
	maxBytes int64
}

// NewUploadHandler creates a new UploadHandler. maxBytes <= 0 disables the body limit.
func NewUploadHandler(svc usecase.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{svc: svc, maxBytes: maxBytes}
}

// Upload handles POST /upload and POST /v1/uploads.
//
// The multipart body is streamed: the file part goes straight to the scratch
// file without being buffered in memory. A title field is honoured only when
// it precedes the file part.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		Error(w, http.StatusBadRequest, "no_file_uploaded", "Request must be multipart/form-data with a video file")
		return
	}

	var title string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.handleMultipartError(w, err)
			return
		}

		switch part.FormName() {
		case TitleField:
			data, err := io.ReadAll(io.LimitReader(part, maxTitleBytes))
			if err != nil {
				_ = part.Close()
				h.handleMultipartError(w, err)
				return
			}
			title = strings.TrimSpace(string(data))

		case FileField:
			if part.FileName() == "" {
				break
			}
			result, err := h.svc.Upload(r.Context(), usecase.UploadInput{
				Title:    title,
				FileName: part.FileName(),
				Body:     part,
			})
			_ = part.Close()
			if err != nil {
				h.handleUploadError(w, err)
				return
			}

			JSON(w, http.StatusOK, UploadResponse{
				Src:   result.URL,
				Title: result.Title,
				JobID: result.Job.ID.String(),
			})
			return
		}
		_ = part.Close()
	}

	Error(w, http.StatusBadRequest, "no_file_uploaded", "No video file was uploaded")
}

func (h *UploadHandler) handleUploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		Error(w, http.StatusRequestEntityTooLarge, "file_too_large", "Upload exceeds the maximum allowed size")
	case errors.Is(err, usecase.ErrNoFile):
		Error(w, http.StatusBadRequest, "no_file_uploaded", "No video file was uploaded")
	case errors.Is(err, usecase.ErrInvalidUpload):
		Error(w, http.StatusBadRequest, "invalid_title", "Title exceeds maximum length")
	case errors.Is(err, usecase.ErrTranscodeFailure):
		Error(w, http.StatusInternalServerError, "transcode_failed", "HLS transcoding failed")
	case errors.Is(err, usecase.ErrVerificationFailure):
		Error(w, http.StatusInternalServerError, "verification_failed", "HLS manifest was not produced")
	case errors.Is(err, usecase.ErrUploadFailure):
		Error(w, http.StatusInternalServerError, "upload_failed", "Publishing HLS files to storage failed")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// handleMultipartError maps failures reading the multipart envelope itself.
func (h *UploadHandler) handleMultipartError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		Error(w, http.StatusRequestEntityTooLarge, "file_too_large", "Upload exceeds the maximum allowed size")
		return
	}
	Error(w, http.StatusBadRequest, "no_file_uploaded", "Malformed multipart body")
}
