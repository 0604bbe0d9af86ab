package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		data           any
		wantStatusCode int
		wantBody       string
	}{
		{
			name:           "encodes value",
			status:         http.StatusCreated,
			data:           map[string]string{"src": "/hls/a/index.m3u8"},
			wantStatusCode: http.StatusCreated,
			wantBody:       `{"src":"/hls/a/index.m3u8"}` + "\n",
		},
		{
			name:           "nil data writes empty body",
			status:         http.StatusNoContent,
			data:           nil,
			wantStatusCode: http.StatusNoContent,
			wantBody:       "",
		},
		{
			name:           "unencodable value becomes internal error",
			status:         http.StatusOK,
			data:           map[string]any{"ch": make(chan int)},
			wantStatusCode: http.StatusInternalServerError,
			wantBody:       `{"error":"internal_error","message":"failed to encode response"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, tt.status, tt.data)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusRequestEntityTooLarge, "file_too_large", "")

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["error"] != "file_too_large" {
		t.Errorf("error = %v, want file_too_large", resp["error"])
	}
	if _, ok := resp["message"]; ok {
		t.Error("empty message should be omitted")
	}
}
