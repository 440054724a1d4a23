// Package transcripts writes session transcripts to date-partitioned JSON files.
package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// FileStore rewrites <dir>/<YYYY-MM-DD>/session_<id>.json on every snapshot
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger *logger.Logger

	mu      sync.Mutex
	written map[string]writeMark // session id -> newest snapshot on disk
}

// writeMark orders snapshots of one session id. A session recreated after
// eviction starts later, so its snapshots win even with a lower version.
type writeMark struct {
	startedAt time.Time
	version   int64
}

func (m writeMark) newerThan(t *models.Transcript) bool {
	if !m.startedAt.Equal(t.StartedAt) {
		return m.startedAt.After(t.StartedAt)
	}
	return m.version >= t.Version
}

// NewFileStore creates a store on the OS filesystem
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	return NewFileStoreFs(afero.NewOsFs(), dir, log)
}

// NewFileStoreFs creates a store on fs, creating the base directory if needed
func NewFileStoreFs(fs afero.Fs, dir string, log *logger.Logger) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir %s: %w", dir, err)
	}
	return &FileStore{
		fs:      fs,
		dir:     dir,
		logger:  log.WithComponent("transcripts"),
		written: make(map[string]writeMark),
	}, nil
}

// Name identifies the sink in logs and metrics
func (s *FileStore) Name() string {
	return "file"
}

// Path returns the file a transcript is written to
func (s *FileStore) Path(t *models.Transcript) string {
	day := t.StartedAt.UTC().Format(time.DateOnly)
	return filepath.Join(s.dir, day, "session_"+safeName(t.SessionID)+".json")
}

// SaveTranscript writes the snapshot unless a newer one of the same session
// was already written
func (s *FileStore) SaveTranscript(ctx context.Context, t *models.Transcript) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mark, ok := s.written[t.SessionID]; ok && mark.newerThan(t) {
		return nil
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	path := s.Path(t)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create transcript dir: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return multierr.Append(fmt.Errorf("failed to rename transcript: %w", err), s.fs.Remove(tmp))
	}

	s.written[t.SessionID] = writeMark{startedAt: t.StartedAt, version: t.Version}
	return nil
}

// Forget drops the write mark of an evicted session
func (s *FileStore) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.written, sessionID)
	s.mu.Unlock()
}

// Tracked returns how many sessions currently have a write mark
func (s *FileStore) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

// Load reads the transcript written for a session on the given day
func (s *FileStore) Load(sessionID string, day time.Time) (*models.Transcript, error) {
	path := filepath.Join(s.dir, day.UTC().Format(time.DateOnly), "session_"+safeName(sessionID)+".json")
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	var t models.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}
	return &t, nil
}

// safeName keeps caller-supplied session ids from escaping the directory
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
