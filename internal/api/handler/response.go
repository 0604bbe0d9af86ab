package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes data as a JSON response with the given status. A nil data
// writes the status with an empty body. Encoding happens before the header is
// sent, so a value that cannot be encoded becomes a 500 internal_error.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(status)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_error","message":"failed to encode response"}` + "\n"))
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// ErrorResponse is the body of every non-2xx API response. Error is a stable
// machine-readable code such as "file_too_large" or "transcode_failed";
// Message is a human-readable detail and may be empty.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error writes an ErrorResponse with the given status, code and message.
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
