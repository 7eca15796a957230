// Package session owns the per-upload temp directories: creation,
// safe filenames, lookup and expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imagecompress-go/internal/batch"
)

var (
	ErrInvalidID = errors.New("invalid session id")
	ErrNotFound  = errors.New("session not found or expired")
)

// idPattern accepts lower-case UUID v4 strings only, so ids are safe to
// join onto filesystem paths.
var idPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-4[a-f0-9]{3}-[89ab][a-f0-9]{3}-[a-f0-9]{12}$`)

// IsValidID reports whether id is a well-formed session id.
func IsValidID(id string) bool {
	return id != "" && idPattern.MatchString(id)
}

// Session is one upload's bookkeeping.
type Session struct {
	ID        string
	Created   time.Time
	TargetKB  float64
	Results   []batch.Report
	UploadDir string
	OutputDir string
}

// Manager creates, tracks and expires sessions.
type Manager struct {
	uploadRoot string
	outputRoot string
	log        *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a Manager rooted at the given directories.
func NewManager(uploadRoot, outputRoot string, log *logrus.Logger) *Manager {
	return &Manager{
		uploadRoot: uploadRoot,
		outputRoot: outputRoot,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Create allocates a new session and its directories.
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	s := &Session{
		ID:        id,
		Created:   time.Now(),
		UploadDir: filepath.Join(m.uploadRoot, id),
		OutputDir: filepath.Join(m.outputRoot, id),
	}
	for _, dir := range []string{s.UploadDir, s.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.WithField("session", ShortID(id)).Debug("Created session")
	return s, nil
}

// Get returns a tracked session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Complete stores the batch outcome on the session.
func (m *Manager) Complete(id string, targetKB float64, results []batch.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.TargetKB = targetKB
		s.Results = results
	}
}

// SaveUpload writes an uploaded file under a sanitized name that does not
// collide with earlier uploads of the session, and returns that name.
func (m *Manager) SaveUpload(id, filename string, data []byte) (string, error) {
	return m.write(filepath.Join(m.uploadRoot, id), id, filename, data)
}

// WriteOutput stores a compressed output and returns its final name.
func (m *Manager) WriteOutput(id, filename string, data []byte) (string, error) {
	return m.write(filepath.Join(m.outputRoot, id), id, filename, data)
}

func (m *Manager) write(dir, id, filename string, data []byte) (string, error) {
	if !IsValidID(id) {
		return "", ErrInvalidID
	}
	name := uniqueName(dir, SanitizeFilename(filename))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

// OutputDir returns the output directory of a live session.
func (m *Manager) OutputDir(id string) (string, error) {
	if !IsValidID(id) {
		return "", ErrInvalidID
	}
	dir := filepath.Join(m.outputRoot, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", ErrNotFound
	}
	return dir, nil
}

// Remove deletes a session's directories and registry entry.
func (m *Manager) Remove(id string) error {
	if !IsValidID(id) {
		return ErrInvalidID
	}
	var errs []error
	for _, root := range []string{m.uploadRoot, m.outputRoot} {
		if err := os.RemoveAll(filepath.Join(root, id)); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	return errors.Join(errs...)
}

// CleanupExpired removes session directories last modified before maxAge
// ago and returns how many directories were removed.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	cleaned := 0
	for _, root := range []string{m.uploadRoot, m.outputRoot} {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
				m.log.Warnf("Failed to remove expired session dir %s: %v", entry.Name(), err)
				continue
			}
			m.mu.Lock()
			delete(m.sessions, entry.Name())
			m.mu.Unlock()
			cleaned++
		}
	}
	if cleaned > 0 {
		m.log.Debugf("Cleaned up %d expired session folders", cleaned)
	}
	return cleaned
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupExpired(maxAge)
		}
	}
}

// SanitizeFilename reduces name to a safe base name of ASCII letters,
// digits, dots, dashes and underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, field := range strings.Fields(name) {
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		for _, r := range field {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
				b.WriteRune(r)
			}
		}
	}
	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		return "image"
	}
	return clean
}

// uniqueName appends _1, _2, ... before the extension until name is unused
// in dir.
func uniqueName(dir, name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// ShortID returns the first eight characters of id for logs and file names.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
