package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagecompress-go/internal/batch"
)

func newTestManager(t *testing.T) (*Manager, string, string) {
	t.Helper()
	root := t.TempDir()
	uploads := filepath.Join(root, "uploads")
	outputs := filepath.Join(root, "output")
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(uploads, outputs, log), uploads, outputs
}

func TestCreateMakesDirectories(t *testing.T) {
	m, uploads, outputs := newTestManager(t)

	s, err := m.Create()
	require.NoError(t, err)
	assert.True(t, IsValidID(s.ID))
	assert.DirExists(t, filepath.Join(uploads, s.ID))
	assert.DirExists(t, filepath.Join(outputs, s.ID))

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
	assert.Equal(t, 1, m.Count())
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("3f2b6c1e-9a4d-4e2b-8c1d-0123456789ab"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("../../etc/passwd"))
	assert.False(t, IsValidID("3F2B6C1E-9A4D-4E2B-8C1D-0123456789AB"))
	assert.False(t, IsValidID("3f2b6c1e-9a4d-1e2b-8c1d-0123456789ab"), "not version 4")
}

func TestSaveUploadDeduplicatesNames(t *testing.T) {
	m, uploads, _ := newTestManager(t)
	s, err := m.Create()
	require.NoError(t, err)

	first, err := m.SaveUpload(s.ID, "my photo.jpg", []byte("a"))
	require.NoError(t, err)
	second, err := m.SaveUpload(s.ID, "my photo.jpg", []byte("b"))
	require.NoError(t, err)
	third, err := m.SaveUpload(s.ID, "my photo.jpg", []byte("c"))
	require.NoError(t, err)

	assert.Equal(t, "my_photo.jpg", first)
	assert.Equal(t, "my_photo_1.jpg", second)
	assert.Equal(t, "my_photo_2.jpg", third)

	data, err := os.ReadFile(filepath.Join(uploads, s.ID, second))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestWriteRejectsInvalidID(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.WriteOutput("../escape", "a.jpg", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":              "photo.jpg",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\image.png`:  "image.png",
		"  holiday  pic .jpeg ":  "holiday_pic_.jpeg",
		"éclair.png":             "clair.png",
		"...":                    "image",
		"":                       "image",
		"na$me(1).jpg":           "name1.jpg",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestOutputDirAndRemove(t *testing.T) {
	m, uploads, outputs := newTestManager(t)
	s, err := m.Create()
	require.NoError(t, err)

	dir, err := m.OutputDir(s.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputs, s.ID), dir)

	_, err = m.OutputDir("nope")
	assert.ErrorIs(t, err, ErrInvalidID)

	require.NoError(t, m.Remove(s.ID))
	assert.NoDirExists(t, filepath.Join(uploads, s.ID))
	assert.NoDirExists(t, filepath.Join(outputs, s.ID))
	_, ok := m.Get(s.ID)
	assert.False(t, ok)

	_, err = m.OutputDir(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComplete(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.Create()
	require.NoError(t, err)

	m.Complete(s.ID, 200, []batch.Report{{Filename: "a.jpg", Success: true}})
	got, _ := m.Get(s.ID)
	assert.Equal(t, 200.0, got.TargetKB)
	require.Len(t, got.Results, 1)
}

func TestCleanupExpired(t *testing.T) {
	m, uploads, outputs := newTestManager(t)
	old, err := m.Create()
	require.NoError(t, err)
	fresh, err := m.Create()
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	for _, root := range []string{uploads, outputs} {
		require.NoError(t, os.Chtimes(filepath.Join(root, old.ID), past, past))
	}

	assert.Equal(t, 2, m.CleanupExpired(time.Hour))
	assert.NoDirExists(t, filepath.Join(outputs, old.ID))
	assert.DirExists(t, filepath.Join(outputs, fresh.ID))
	_, ok := m.Get(old.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestCleanupExpiredMissingRoots(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.Zero(t, m.CleanupExpired(time.Hour))
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 10*time.Millisecond, time.Hour) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f2b6c1e", ShortID("3f2b6c1e-9a4d-4e2b-8c1d-0123456789ab"))
	assert.Equal(t, "abc", ShortID("abc"))
}
