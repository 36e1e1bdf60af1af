package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harliandi/imgsqueeze/internal/archive"
	"github.com/harliandi/imgsqueeze/internal/compressor"
	"github.com/harliandi/imgsqueeze/internal/middleware"
)

// Batch handles POST /compress/batch. Every "files" part is compressed
// independently; the ones that fail are left out of the zip and listed in
// X-Failed-Files.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !h.parseForm(w, r, h.maxUpload*int64(h.maxBatchFiles)) {
		return
	}

	headers := r.MultipartForm.File["files"]
	switch {
	case len(headers) == 0:
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	case len(headers) > h.maxBatchFiles:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Too many files (max %d)", h.maxBatchFiles))
		return
	}

	batchID := uuid.NewString()
	logger := h.logger.With(
		zap.String("batch_id", batchID),
		zap.String("request_id", middleware.RequestIDFrom(r.Context())),
	)

	var (
		files    []compressor.File
		failures []batchFailure
	)
	for _, fh := range headers {
		if !acceptedName(fh.Filename) {
			failures = append(failures, batchFailure{Name: fh.Filename, Error: "Unsupported file extension"})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			failures = append(failures, batchFailure{Name: fh.Filename, Error: "Could not read upload"})
			continue
		}
		data, err := readPart(f, fh)
		f.Close()
		if err != nil {
			failures = append(failures, batchFailure{Name: fh.Filename, Error: "Could not read upload"})
			continue
		}
		files = append(files, compressor.File{Name: fh.Filename, Data: data})
	}

	var (
		buf    bytes.Buffer
		now    = h.now()
		bundle = archive.NewBundle(&buf, h.compressor.Extension(), now)
	)
	for _, item := range h.pool.CompressBatch(r.Context(), files) {
		if item.Err != nil {
			logger.Info("batch item failed", zap.String("name", item.Name), zap.Error(item.Err))
			failures = append(failures, batchFailure{Name: item.Name, Error: messageFor(item.Err)})
			continue
		}
		if _, err := bundle.Add(item.Name, item.Result.Data); err != nil {
			h.fail(w, r, item.Name, err)
			return
		}
	}
	if bundle.Len() == 0 {
		bundle.Close()
		logger.Info("batch produced no output", zap.Int("files", len(headers)))
		writeJSON(w, http.StatusUnprocessableEntity, batchErrorResponse{
			Error:    "No file could be compressed",
			BatchID:  batchID,
			Failures: failures,
		})
		return
	}
	if err := bundle.Close(); err != nil {
		h.fail(w, r, "", err)
		return
	}

	logger.Info("batch compressed",
		zap.Int("files", len(headers)),
		zap.Int("compressed", bundle.Len()),
		zap.Int("failed", len(failures)),
		zap.Int("zip_bytes", buf.Len()),
	)

	hdr := w.Header()
	hdr.Set("Content-Type", "application/zip")
	hdr.Set("Content-Length", strconv.Itoa(buf.Len()))
	hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.ZipName(now)))
	hdr.Set("ETag", etag(buf.Bytes()))
	hdr.Set("X-Batch-ID", batchID)
	hdr.Set("X-Compressed-Count", strconv.Itoa(bundle.Len()))
	if len(failures) > 0 {
		hdr.Set("X-Failed-Files", failedNames(failures))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// failedNames joins base names for a header value. Commas and control
// characters in names are replaced so the list stays parseable.
func failedNames(failures []batchFailure) string {
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = strings.Map(func(r rune) rune {
			if r == ',' || r < 0x20 || r == 0x7f {
				return '_'
			}
			return r
		}, archive.BaseName(f.Name))
	}
	return strings.Join(names, ",")
}

