package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteZip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("first"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("second"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	var buf bytes.Buffer
	n, err := WriteZip(&buf, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	got := map[string]string{}
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = string(data)
	}
	assert.Equal(t, map[string]string{"a.jpg": "first", "b.png": "second"}, got)
}

func TestWriteZipEmptyDir(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteZip(&buf, t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestWriteZipMissingDir(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteZip(&buf, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
