package eventlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/sweeney/power-sensor/internal/logic"
)

//go:embed schema.sql
var schemaSQL string

// sqliteStore keeps one row per event. Appends and replaces run in a single
// transaction, so a failed write rolls back to the previous log.
type sqliteStore struct {
	path string
	log  zerolog.Logger

	mu       sync.Mutex
	db       *sql.DB
	migrated bool
	closed   bool
	now      func() time.Time
}

func openSQLite(path string, log zerolog.Logger) (*sqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}
	s := &sqliteStore{
		path: path,
		log:  log.With().Str("component", "eventlog").Str("driver", "sqlite").Logger(),
		now:  time.Now,
	}
	if err := s.openDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) openDB() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("eventlog: open sqlite: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db
	s.migrated = false
	return nil
}

// ensureLocked applies the schema on first use. A database file that SQLite
// cannot read surfaces here as a *CorruptError.
func (s *sqliteStore) ensureLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.migrated {
		return nil
	}
	_, _ = s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = s.db.ExecContext(ctx, "PRAGMA synchronous = FULL")
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return &CorruptError{Path: s.path, Err: err}
	}
	s.migrated = true
	return nil
}

func (s *sqliteStore) Path() string { return s.path }

func (s *sqliteStore) Load(ctx context.Context) (logic.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return s.loadLocked(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *sqliteStore) loadLocked(ctx context.Context, q querier) (logic.Log, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, kind, day, at FROM power_events ORDER BY day ASC, seq DESC`)
	if err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	defer rows.Close()

	l := logic.Log{}
	for rows.Next() {
		var id, kind, day, at string
		if err := rows.Scan(&id, &kind, &day, &at); err != nil {
			return nil, &CorruptError{Path: s.path, Err: err}
		}
		k, err := logic.ParseKind(kind)
		if err != nil {
			return nil, &CorruptError{Path: s.path, Err: fmt.Errorf("event %s: %w", id, err)}
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, &CorruptError{Path: s.path, Err: fmt.Errorf("event %s: %w", id, err)}
		}
		l[day] = append(l[day], logic.Event{ID: id, Kind: k, Time: t})
	}
	if err := rows.Err(); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	return l, nil
}

func (s *sqliteStore) Append(ctx context.Context, e logic.Event) (logic.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, e); err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}
	l, err := s.loadLocked(ctx, tx)
	if err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}
	return l, nil
}

func (s *sqliteStore) Replace(ctx context.Context, l logic.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return &PersistenceError{Op: "replace", Path: s.path, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "replace", Path: s.path, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM power_events`); err != nil {
		return &PersistenceError{Op: "replace", Path: s.path, Err: err}
	}

	// Insert oldest first so seq order matches chronological order.
	days := make([]string, 0, len(l))
	for day := range l {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		events := l[day]
		for i := len(events) - 1; i >= 0; i-- {
			if err := insertEvent(ctx, tx, events[i]); err != nil {
				return &PersistenceError{Op: "replace", Path: s.path, Err: err}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "replace", Path: s.path, Err: err}
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, e logic.Event) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO power_events(id, kind, day, at) VALUES(?,?,?,?)`,
		e.ID, string(e.Kind), logic.DayKey(e.Time), e.Time.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	_ = s.db.Close()

	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, backup); err != nil {
		// Keep the store usable on the old file.
		if oerr := s.openDB(); oerr != nil {
			return "", errors.Join(err, oerr)
		}
		return "", fmt.Errorf("eventlog: backup %s: %w", s.path, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Rename(s.path+suffix, backup+suffix)
	}
	if err := s.openDB(); err != nil {
		return backup, err
	}
	return backup, nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
