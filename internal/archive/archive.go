// Package archive names compressed outputs and bundles batches into zip files.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

// TimestampLayout prefixes download and zip names
const TimestampLayout = "20060102_150405"

// EntryPrefix prefixes every file inside a batch zip
const EntryPrefix = "compressed_"

// ErrNoEntries is returned when a bundle is closed without any file in it
var ErrNoEntries = errors.New("archive: no entries written")

// Clock returns the current time
type Clock func() time.Time

// BaseName strips directories, including Windows ones browsers sometimes send.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// ReplaceExt swaps the extension of name for ext (".jpg", ".webp")
func ReplaceExt(name, ext string) string {
	name = BaseName(name)
	if name == "" {
		name = "image"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// DownloadName is the attachment name for a single compressed image
func DownloadName(now time.Time, name, ext string) string {
	return now.Format(TimestampLayout) + "_" + ReplaceExt(name, ext)
}

// EntryName is the name of a compressed image inside a batch zip
func EntryName(name, ext string) string {
	return EntryPrefix + ReplaceExt(name, ext)
}

// ZipName is the attachment name of a batch zip
func ZipName(now time.Time) string {
	return now.Format(TimestampLayout) + ".zip"
}

// Bundle writes compressed images into a deflated zip stream
type Bundle struct {
	zw      *zip.Writer
	ext     string
	now     time.Time
	seen    map[string]int
	entries int
}

// NewBundle starts a zip on w. Entries get ext as their extension and now as
// their modification time.
func NewBundle(w io.Writer, ext string, now time.Time) *Bundle {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})
	return &Bundle{
		zw:   zw,
		ext:  ext,
		now:  now,
		seen: make(map[string]int),
	}
}

// Add writes one image under its entry name and returns that name.
// Duplicate names get a numeric suffix.
func (b *Bundle) Add(name string, data []byte) (string, error) {
	entry := b.unique(EntryName(name, b.ext))
	fw, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: b.now,
	})
	if err != nil {
		return "", fmt.Errorf("create zip entry %s: %w", entry, err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("write zip entry %s: %w", entry, err)
	}
	b.entries++
	return entry, nil
}

func (b *Bundle) unique(entry string) string {
	n := b.seen[entry]
	b.seen[entry] = n + 1
	if n == 0 {
		return entry
	}
	ext := filepath.Ext(entry)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(entry, ext), n, ext)
}

// Len returns the number of entries written so far
func (b *Bundle) Len() int {
	return b.entries
}

// Close finishes the zip. It returns ErrNoEntries for an empty bundle,
// after still writing a valid empty archive.
func (b *Bundle) Close() error {
	if err := b.zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	if b.entries == 0 {
		return ErrNoEntries
	}
	return nil
}
