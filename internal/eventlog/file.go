package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/logic"
)

// fileStore keeps the whole log in one JSON file.
//
// Every write goes to a temp file in the same directory which is synced and
// then renamed over the target, so readers see either the old or the new log.
type fileStore struct {
	path string
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool

	// writeFile atomically replaces path with data. Tests swap it to inject failures.
	writeFile func(path string, data []byte) error
	now       func() time.Time
}

func openFile(path string, log zerolog.Logger) (*fileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}
	return &fileStore{
		path:      path,
		log:       log.With().Str("component", "eventlog").Str("driver", "json").Logger(),
		writeFile: atomicWriteFile,
		now:       time.Now,
	}, nil
}

func (s *fileStore) Path() string { return s.path }

func (s *fileStore) Load(ctx context.Context) (logic.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return s.readLocked()
}

func (s *fileStore) Append(ctx context.Context, e logic.Event) (logic.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}

	current, err := s.readLocked()
	if err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}
	next := current.Prepend(e)
	if err := s.writeLocked(next); err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}
	return next, nil
}

func (s *fileStore) Replace(ctx context.Context, l logic.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "replace", Path: s.path, Err: err}
	}
	if l == nil {
		l = logic.Log{}
	}
	if err := s.writeLocked(l); err != nil {
		return &PersistenceError{Op: "replace", Path: s.path, Err: err}
	}
	return nil
}

func (s *fileStore) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, backup); err != nil {
		return "", fmt.Errorf("eventlog: backup %s: %w", s.path, err)
	}
	return backup, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) readLocked() (logic.Log, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return logic.Log{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return logic.Log{}, nil
	}

	var l logic.Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if l == nil {
		// "null" on disk
		l = logic.Log{}
	}
	return l, nil
}

func (s *fileStore) writeLocked(l logic.Log) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	data = append(data, '\n')
	return s.writeFile(s.path, data)
}

// atomicWriteFile writes data to a temp file next to path and renames it into place.
// On any failure the temp file is removed and path is untouched.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}

	// Persist the rename itself. Best effort: not every filesystem supports it.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
