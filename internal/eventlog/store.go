// Package eventlog persists the per-day power event log.
//
// Two drivers are available:
//   - json:   one pretty-printed JSON file, replaced atomically on every write
//   - sqlite: one table in a SQLite database, written in transactions
//
// The persisted state is authoritative. Callers hold copies only.
package eventlog

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/logic"
)

// Store is the durable event log.
type Store interface {
	// Load reads the whole log. A missing backing store yields an empty log.
	// An undecodable one yields a *CorruptError.
	Load(ctx context.Context) (logic.Log, error)

	// Append prepends e to its day bucket, persists the result and returns it.
	// On failure it returns a *PersistenceError and the stored log is unchanged.
	Append(ctx context.Context, e logic.Event) (logic.Log, error)

	// Replace persists l as the whole log with the same guarantees as Append.
	Replace(ctx context.Context, l logic.Log) error

	// Backup moves an unreadable backing store aside so a fresh log can start.
	// It returns the backup location, or "" when there was nothing to move.
	Backup() (string, error)

	// Path describes where the log lives.
	Path() string

	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver string // "json" (default) or "sqlite"
	Path   string
}

// Open initializes the configured store.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("eventlog: path is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "json", "file":
		s, err := openFile(path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "sqlite3":
		s, err := openSQLite(path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("eventlog: unknown driver: " + cfg.Driver)
	}
}
