package handler

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	stdjpeg "image/jpeg"
	"image/png"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/harliandi/imgsqueeze/internal/compressor"
	"github.com/harliandi/imgsqueeze/internal/config"
	"github.com/harliandi/imgsqueeze/internal/decode"
	"github.com/harliandi/imgsqueeze/pkg/quality"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{MaxUploadMB: 1, MaxBatchFiles: 3}
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := testConfig()
	c, err := compressor.New(config.FormatJPEG, config.EncoderStd, cfg.MaxUploadBytes(), nil)
	if err != nil {
		t.Fatalf("compressor.New() error = %v", err)
	}
	pool := compressor.NewWorkerPool(c, 2)
	t.Cleanup(pool.Stop)
	return New(c, pool, cfg, nil, WithClock(func() time.Time { return fixedNow }))
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type upload struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, parts ...upload) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, p := range parts {
		part, err := writer.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(p.data)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func do(t *testing.T, hf http.HandlerFunc, target string, parts ...upload) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	hf(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %q", w.Body.String())
	}
	return resp.Error
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	for _, hf := range []http.HandlerFunc{h.Compress, h.Batch, h.Preview} {
		w := httptest.NewRecorder()
		hf(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", w.Code)
		}
	}
}

func TestHandler_Compress_NotMultipart(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/compress", strings.NewReader("test"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Compress(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandler_Compress_NoFile(t *testing.T) {
	h := newTestHandler(t)
	w := do(t, h.Compress, "/compress", upload{"other", "a.png", []byte("x")})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "No file provided" {
		t.Errorf("error = %q", msg)
	}
}

func TestHandler_Compress_Rejections(t *testing.T) {
	pngMagic := []byte("\x89PNG\r\n\x1a\n")
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     int
	}{
		{"Unsupported extension", "notes.txt", []byte("hello"), http.StatusUnsupportedMediaType},
		{"Unknown content", "photo.png", []byte("definitely not an image"), http.StatusUnsupportedMediaType},
		{"Corrupt data", "photo.png", append(pngMagic, []byte("garbage")...), http.StatusBadRequest},
		{"Empty file", "photo.png", nil, http.StatusBadRequest},
		{"Over upload limit", "photo.png", make([]byte, 1<<20+512), http.StatusRequestEntityTooLarge},
	}

	h := newTestHandler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h.Compress, "/compress", upload{"file", tt.filename, tt.data})
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("error Content-Type = %q", ct)
			}
		})
	}
}

func TestHandler_Compress_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t)
	w := do(t, h.Compress, "/compress", upload{"file", "big.png", make([]byte, 3<<20)})

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", w.Code)
	}
}

func TestHandler_Compress_Binary(t *testing.T) {
	h := newTestHandler(t)
	data := testPNG(t, 200, 200)

	w := do(t, h.Compress, "/compress", upload{"file", "dir/holiday.png", data})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	hdr := w.Header()
	if ct := hdr.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := hdr.Get("Content-Disposition"); cd != `attachment; filename="20240305_140709_holiday.jpg"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if got, want := hdr.Get("ETag"), `"`+strconv.FormatUint(xxhash.Sum64(w.Body.Bytes()), 16)+`"`; got != want {
		t.Errorf("ETag = %s, want %s", got, want)
	}
	if hdr.Get("Content-Length") != strconv.Itoa(w.Body.Len()) {
		t.Errorf("Content-Length = %s, body is %d bytes", hdr.Get("Content-Length"), w.Body.Len())
	}

	q, err := strconv.Atoi(hdr.Get("X-Quality"))
	if err != nil || q < quality.MinQuality || q > quality.MaxQuality {
		t.Errorf("X-Quality = %q", hdr.Get("X-Quality"))
	}
	for _, key := range []string{"X-Original-Size-KB", "X-Target-Size-KB", "X-Compressed-Size-KB", "X-Reduction-Percent"} {
		if _, err := strconv.ParseFloat(hdr.Get(key), 64); err != nil {
			t.Errorf("%s = %q is not a number", key, hdr.Get(key))
		}
	}
	if _, err := strconv.ParseBool(hdr.Get("X-Target-Met")); err != nil {
		t.Errorf("X-Target-Met = %q", hdr.Get("X-Target-Met"))
	}

	if _, err := stdjpeg.DecodeConfig(bytes.NewReader(w.Body.Bytes())); err != nil {
		t.Errorf("body is not a JPEG: %v", err)
	}
}

func TestHandler_Compress_JSON(t *testing.T) {
	h := newTestHandler(t)
	data := testPNG(t, 64, 64)

	w := do(t, h.Compress, "/compress?format=json", upload{"file", "small.png", data})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["name"] != "small.png" || resp["source_format"] != "png" || resp["format"] != "jpeg" {
		t.Errorf("unexpected identity fields: %v", resp)
	}
	if resp["download_name"] != "20240305_140709_small.jpg" {
		t.Errorf("download_name = %v", resp["download_name"])
	}
	if resp["width"] != float64(64) || resp["height"] != float64(64) {
		t.Errorf("dimensions = %v x %v", resp["width"], resp["height"])
	}
	if resp["original_kb"] != float64(len(data))/1024 {
		t.Errorf("original_kb = %v, want %v", resp["original_kb"], float64(len(data))/1024)
	}
	if _, ok := resp["data"]; ok {
		t.Error("image bytes must not be part of the JSON summary")
	}
	if etag, _ := resp["etag"].(string); !strings.HasPrefix(etag, `"`) {
		t.Errorf("etag = %v", resp["etag"])
	}
}

func TestHandler_Compress_ExtensionlessName(t *testing.T) {
	h := newTestHandler(t)
	w := do(t, h.Compress, "/compress", upload{"file", "blob", testPNG(t, 16, 16)})

	if w.Code != http.StatusOK {
		t.Fatalf("extensionless upload should be sniffed, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="20240305_140709_blob.jpg"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestHandler_Batch(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h.Batch, "/compress/batch",
		upload{"files", "one.png", testPNG(t, 40, 40)},
		upload{"files", "broken.png", []byte("nope")},
		upload{"files", "two.png", testPNG(t, 50, 30)},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	hdr := w.Header()
	if hdr.Get("Content-Type") != "application/zip" {
		t.Errorf("Content-Type = %q", hdr.Get("Content-Type"))
	}
	if cd := hdr.Get("Content-Disposition"); cd != `attachment; filename="20240305_140709.zip"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if hdr.Get("X-Failed-Files") != "broken.png" {
		t.Errorf("X-Failed-Files = %q", hdr.Get("X-Failed-Files"))
	}
	if hdr.Get("X-Compressed-Count") != "2" {
		t.Errorf("X-Compressed-Count = %q", hdr.Get("X-Compressed-Count"))
	}
	if hdr.Get("X-Batch-ID") == "" {
		t.Error("X-Batch-ID should be set")
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("body is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "compressed_one.jpg,compressed_two.jpg" {
		t.Errorf("zip entries = %v", names)
	}
}

func TestHandler_Batch_AllFailed(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h.Batch, "/compress/batch",
		upload{"files", "a.png", []byte("nope")},
		upload{"files", "b.txt", []byte("text")},
	)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", w.Code)
	}

	var resp batchErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Failures) != 2 || resp.BatchID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_Batch_Limits(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h.Batch, "/compress/batch", upload{"file", "a.png", testPNG(t, 8, 8)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no files: expected status 400, got %d", w.Code)
	}

	var parts []upload
	for i := 0; i < 4; i++ {
		parts = append(parts, upload{"files", "p" + strconv.Itoa(i) + ".png", testPNG(t, 8, 8)})
	}
	w = do(t, h.Batch, "/compress/batch", parts...)
	if w.Code != http.StatusBadRequest {
		t.Errorf("too many files: expected status 400, got %d", w.Code)
	}
}

func TestHandler_Preview(t *testing.T) {
	h := newTestHandler(t)
	data := testPNG(t, 400, 200)

	w := do(t, h.Preview, "/preview?width=100", upload{"file", "wide.png", data})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	cfg, err := stdjpeg.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("preview is not a JPEG: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("preview is %dx%d, want 100x50", cfg.Width, cfg.Height)
	}

	w = do(t, h.Preview, "/preview", upload{"file", "wide.png", data})
	if cfg, _ := stdjpeg.DecodeConfig(bytes.NewReader(w.Body.Bytes())); cfg.Width != 320 {
		t.Errorf("default preview width = %d, want 320", cfg.Width)
	}
}

func TestHandler_Preview_BadWidth(t *testing.T) {
	h := newTestHandler(t)
	for _, width := range []string{"0", "-3", "abc", "99999"} {
		w := do(t, h.Preview, "/preview?width="+width, upload{"file", "a.png", testPNG(t, 8, 8)})
		if w.Code != http.StatusBadRequest {
			t.Errorf("width=%s: expected status 400, got %d", width, w.Code)
		}
	}
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler(t)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", w.Header().Get("Content-Type"))
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Format != "jpeg" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{compressor.ErrEmptyFile, http.StatusBadRequest},
		{compressor.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{compressor.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
		{quality.ErrInvalidInput, http.StatusBadRequest},
		{compressor.ErrPoolBusy, http.StatusServiceUnavailable},
		{quality.ErrEncodeFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestMessageFor(t *testing.T) {
	encodeErr := fmt.Errorf("%w at quality %d: %w", quality.ErrEncodeFailed, 52, errors.New("unsupported pixel layout"))
	tooBig := fmt.Errorf("%w: 30000x30000 (max: 20000x20000)", compressor.ErrImageTooLarge)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"encode failure", encodeErr, encodeErr.Error()},
		{"validation", tooBig, tooBig.Error()},
		{"unsupported", decode.ErrUnsupportedFormat, "unsupported image format"},
		{"busy", compressor.ErrPoolBusy, compressor.ErrPoolBusy.Error()},
		{"unclassified", errors.New("zip: write to closed writer"), "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageFor(tt.err); got != tt.want {
				t.Errorf("messageFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandler_Compress_ErrorMessageShown(t *testing.T) {
	h := newTestHandler(t)
	data := append([]byte("\x89PNG\r\n\x1a\n"), []byte("garbage")...)

	w := do(t, h.Compress, "/compress", upload{"file", "photo.png", data})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); !strings.HasPrefix(msg, "corrupt image data: png") {
		t.Errorf("error = %q, want the decoder message", msg)
	}
}

func TestFailedNames(t *testing.T) {
	got := failedNames([]batchFailure{
		{Name: "a,b.png"},
		{Name: `C:\photos\c.heic`},
		{Name: "line\nbreak.jpg"},
	})
	if got != "a_b.png,c.heic,line_break.jpg" {
		t.Errorf("failedNames() = %q", got)
	}
}
