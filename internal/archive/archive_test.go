package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		name, ext, want string
	}{
		{"photo.heic", ".jpg", "photo.jpg"},
		{"photo.HEIC", ".webp", "photo.webp"},
		{"archive.tar.png", ".jpg", "archive.tar.jpg"},
		{"noext", ".jpg", "noext.jpg"},
		{"dir/sub/photo.png", ".jpg", "photo.jpg"},
		{`C:\Users\me\photo.png`, ".jpg", "photo.jpg"},
		{"", ".jpg", "image.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceExt(tt.name, tt.ext))
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "20240305_140709_IMG_0001.jpg", DownloadName(fixedNow, "IMG_0001.HEIC", ".jpg"))
	assert.Equal(t, "compressed_IMG_0001.webp", EntryName("IMG_0001.png", ".webp"))
	assert.Equal(t, "20240305_140709.zip", ZipName(fixedNow))
}

func TestBundle(t *testing.T) {
	var buf bytes.Buffer
	b := NewBundle(&buf, ".jpg", fixedNow)

	first, err := b.Add("a.png", []byte("first image"))
	require.NoError(t, err)
	second, err := b.Add("b.heic", bytes.Repeat([]byte("x"), 4096))
	require.NoError(t, err)
	dup, err := b.Add("a.gif", []byte("same base name"))
	require.NoError(t, err)

	assert.Equal(t, "compressed_a.jpg", first)
	assert.Equal(t, "compressed_b.jpg", second)
	assert.Equal(t, "compressed_a_1.jpg", dup)
	assert.Equal(t, 3, b.Len())
	require.NoError(t, b.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)

	contents := map[string]string{}
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		assert.True(t, f.Modified.Equal(fixedNow), "modified = %v", f.Modified)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = string(data)
	}
	assert.Equal(t, "first image", contents["compressed_a.jpg"])
	assert.Len(t, contents["compressed_b.jpg"], 4096)
	assert.Equal(t, "same base name", contents["compressed_a_1.jpg"])
	assert.Less(t, int(zr.File[1].CompressedSize64), 4096)
}

func TestBundle_Empty(t *testing.T) {
	var buf bytes.Buffer
	b := NewBundle(&buf, ".jpg", fixedNow)
	assert.ErrorIs(t, b.Close(), ErrNoEntries)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}
