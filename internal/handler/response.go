package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/harliandi/imgsqueeze/internal/compressor"
	"github.com/harliandi/imgsqueeze/internal/decode"
	"github.com/harliandi/imgsqueeze/internal/preview"
	"github.com/harliandi/imgsqueeze/pkg/quality"
)

type errorResponse struct {
	Error string `json:"error"`
}

type compressResponse struct {
	*compressor.Result
	DownloadName string `json:"download_name"`
	ETag         string `json:"etag"`
}

type healthResponse struct {
	Status string `json:"status"`
	Format string `json:"format"`
	Queued int    `json:"queued"`
	Active int    `json:"active"`
}

type batchFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type batchErrorResponse struct {
	Error    string         `json:"error"`
	BatchID  string         `json:"batch_id"`
	Failures []batchFailure `json:"failures"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a compression error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, compressor.ErrFileTooLarge), errors.Is(err, compressor.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, decode.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, decode.ErrCorrupt),
		errors.Is(err, quality.ErrInvalidInput),
		errors.Is(err, preview.ErrInvalidWidth):
		return http.StatusBadRequest
	case errors.Is(err, compressor.ErrPoolBusy), errors.Is(err, compressor.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the client-facing text for err. Classified failures,
// including encoder errors, are shown as they are; anything unclassified is
// reported only as an internal error.
func messageFor(err error) string {
	if statusFor(err) == http.StatusInternalServerError && !errors.Is(err, quality.ErrEncodeFailed) {
		return "Internal server error"
	}
	return err.Error()
}

func hasExt(name string) bool {
	return filepath.Ext(name) != ""
}
