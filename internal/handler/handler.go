// Package handler exposes the compressor over HTTP.
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/harliandi/imgsqueeze/internal/archive"
	"github.com/harliandi/imgsqueeze/internal/compressor"
	"github.com/harliandi/imgsqueeze/internal/config"
	"github.com/harliandi/imgsqueeze/internal/decode"
	"github.com/harliandi/imgsqueeze/internal/logging"
	"github.com/harliandi/imgsqueeze/internal/middleware"
	"github.com/harliandi/imgsqueeze/internal/preview"
)

const (
	maxMemory = 32 << 20 // in-memory part of multipart parsing
	// multipart framing on top of the file payload
	formOverhead = 1 << 20
	// pool submissions retry this many times while the queue is full
	submitRetries = 3
)

// Handler serves compression requests
type Handler struct {
	compressor    *compressor.Compressor
	pool          *compressor.WorkerPool
	maxUpload     int64
	maxBatchFiles int
	now           archive.Clock
	logger        *zap.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithClock overrides the clock used for download names
func WithClock(now archive.Clock) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a Handler submitting work to pool
func New(c *compressor.Compressor, pool *compressor.WorkerPool, cfg *config.Config, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		compressor:    c,
		pool:          pool,
		maxUpload:     cfg.MaxUploadBytes(),
		maxBatchFiles: cfg.MaxBatchFiles,
		now:           time.Now,
		logger:        logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Compress handles POST /compress
func (h *Handler) Compress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !h.parseForm(w, r, h.maxUpload) {
		return
	}

	name, data, ok := h.formFile(w, r)
	if !ok {
		return
	}

	res, err := h.pool.SubmitWithRetry(r.Context(), name, data, submitRetries)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}

	download := archive.DownloadName(h.now(), name, h.compressor.Extension())
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, compressResponse{Result: res, DownloadName: download, ETag: etag(res.Data)})
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", h.compressor.ContentType())
	hdr.Set("Content-Length", strconv.Itoa(len(res.Data)))
	hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download))
	hdr.Set("ETag", etag(res.Data))
	hdr.Set("X-Original-Size-KB", formatKB(res.OriginalKB))
	hdr.Set("X-Target-Size-KB", formatKB(res.TargetKB))
	hdr.Set("X-Compressed-Size-KB", formatKB(res.CompressedKB))
	hdr.Set("X-Reduction-Percent", strconv.FormatFloat(res.ReductionPercent, 'f', 1, 64))
	hdr.Set("X-Quality", strconv.Itoa(res.Quality))
	hdr.Set("X-Target-Met", strconv.FormatBool(res.MetTarget))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// Preview handles POST /preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	width := preview.DefaultWidth
	if s := r.URL.Query().Get("width"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 || v > preview.MaxWidth {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("width must be between 1 and %d", preview.MaxWidth))
			return
		}
		width = v
	}

	if !h.parseForm(w, r, h.maxUpload) {
		return
	}
	name, data, ok := h.formFile(w, r)
	if !ok {
		return
	}

	if err := compressor.ValidateFile(data, h.maxUpload); err != nil {
		h.fail(w, r, name, err)
		return
	}
	img, _, err := compressor.DecodeImage(data)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}

	out, err := preview.Render(img, width)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Set("ETag", etag(out))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// Health handles GET /health for readiness and liveness probes
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	queued, active := h.pool.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Format: h.compressor.Format(),
		Queued: queued,
		Active: active,
	})
}

// parseForm limits the body to limit plus framing and parses it as multipart.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	err := r.ParseMultipartForm(maxMemory)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		writeError(w, http.StatusBadRequest, "Content-Type must be multipart/form-data")
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
	default:
		writeError(w, http.StatusBadRequest, "Malformed multipart body")
	}
	return false
}

// formFile reads the "file" field, rejecting names with an unknown extension.
func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return "", nil, false
	}
	defer file.Close()

	if !acceptedName(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported file extension")
		return "", nil, false
	}

	data, err := readPart(file, header)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read upload")
		return "", nil, false
	}
	return header.Filename, data, true
}

// fail logs err and writes the matching error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("name", name),
		zap.Int("status", status),
		zap.String("request_id", middleware.RequestIDFrom(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, messageFor(err))
}

// acceptedName allows extensionless names, leaving the decision to sniffing.
func acceptedName(name string) bool {
	return decode.IsSupportedName(name) || !hasExt(name)
}

func readPart(file multipart.File, header *multipart.FileHeader) ([]byte, error) {
	if header.Size > 0 {
		buf := make([]byte, header.Size)
		if _, err := io.ReadFull(file, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return io.ReadAll(file)
}

// etag is a strong validator over the response body.
func etag(data []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
}

func formatKB(kb float64) string {
	return strconv.FormatFloat(kb, 'f', 2, 64)
}
