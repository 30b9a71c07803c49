package eventlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/logic"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func event(id string, k logic.Kind, ts string) logic.Event {
	return logic.Event{ID: id, Kind: k, Time: at(ts)}
}

// drivers runs fn against a fresh store of every driver.
func drivers(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	for _, driver := range []string{"json", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "power-log."+driver)
			s, err := Open(Config{Driver: driver, Path: path}, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open(Config{Driver: "json"}, zerolog.Nop()); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := Open(Config{Driver: "redis", Path: filepath.Join(t.TempDir(), "x")}, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestLoadEmptyOnFirstRun(t *testing.T) {
	drivers(t, func(t *testing.T, s Store) {
		l, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if l == nil || l.Len() != 0 {
			t.Errorf("expected empty non-nil log, got %v", l)
		}
	})
}

func TestAppendRoundTrip(t *testing.T) {
	drivers(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e1 := event("e1", logic.KindLost, "2024-03-01T10:00:00")
		e2 := event("e2", logic.KindRestored, "2024-03-01T10:05:30")

		if _, err := s.Append(ctx, e1); err != nil {
			t.Fatalf("Append e1: %v", err)
		}
		returned, err := s.Append(ctx, e2)
		if err != nil {
			t.Fatalf("Append e2: %v", err)
		}
		if got := returned["2024-03-01"]; len(got) != 2 || got[0].ID != "e2" {
			t.Errorf("Append result: got %+v", got)
		}

		l, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		bucket := l["2024-03-01"]
		if len(bucket) != 2 {
			t.Fatalf("expected 2 events, got %d", len(bucket))
		}
		first := bucket[0]
		if first.ID != e2.ID || first.Kind != e2.Kind || !first.Time.Equal(e2.Time) {
			t.Errorf("first element: got %+v, want %+v", first, e2)
		}
		if bucket[1].ID != "e1" {
			t.Errorf("second element: got %s, want e1", bucket[1].ID)
		}
	})
}

func TestAppendBucketsByDay(t *testing.T) {
	drivers(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Append(ctx, event("late", logic.KindLost, "2024-03-01T23:59:59"))
		s.Append(ctx, event("early", logic.KindRestored, "2024-03-02T00:00:00"))

		l, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(l["2024-03-01"]) != 1 || l["2024-03-01"][0].ID != "late" {
			t.Errorf("2024-03-01: got %+v", l["2024-03-01"])
		}
		if len(l["2024-03-02"]) != 1 || l["2024-03-02"][0].ID != "early" {
			t.Errorf("2024-03-02: got %+v", l["2024-03-02"])
		}
	})
}

func TestReplace(t *testing.T) {
	drivers(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Append(ctx, event("old", logic.KindLost, "2024-02-01T08:00:00"))

		want := logic.Log{
			"2024-03-01": {
				event("b", logic.KindRestored, "2024-03-01T11:00:00"),
				event("a", logic.KindLost, "2024-03-01T10:00:00"),
			},
			"2024-03-03": {event("c", logic.KindLost, "2024-03-03T09:00:00")},
		}
		if err := s.Replace(ctx, want); err != nil {
			t.Fatalf("Replace: %v", err)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if _, ok := got["2024-02-01"]; ok {
			t.Error("Replace kept a bucket that was not in the new log")
		}
		if b := got["2024-03-01"]; len(b) != 2 || b[0].ID != "b" || b[1].ID != "a" {
			t.Errorf("2024-03-01 order: got %+v", b)
		}
		if b := got["2024-03-03"]; len(b) != 1 || b[0].ID != "c" {
			t.Errorf("2024-03-03: got %+v", b)
		}
	})
}

func TestConcurrentAppendsAllLand(t *testing.T) {
	drivers(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				k := logic.KindLost
				if i%2 == 0 {
					k = logic.KindRestored
				}
				e := logic.Event{ID: fmt.Sprintf("e%02d", i), Kind: k, Time: at("2024-03-01T10:00:00").Add(time.Duration(i) * time.Second)}
				if _, err := s.Append(ctx, e); err != nil {
					t.Errorf("Append %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		l, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if l.Len() != n {
			t.Errorf("expected %d events after concurrent appends, got %d", n, l.Len())
		}
	})
}

func TestAfterClose(t *testing.T) {
	drivers(t, func(t *testing.T, s Store) {
		s.Close()
		if _, err := s.Load(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("Load after close: got %v, want ErrClosed", err)
		}
		_, err := s.Append(context.Background(), event("x", logic.KindLost, "2024-03-01T10:00:00"))
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Append after close: got %v, want ErrClosed", err)
		}
	})
}

func TestFileCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.json")
	s, err := Open(Config{Driver: "json", Path: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Load(ctx)
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "load" || !errors.Is(err, context.Canceled) {
		t.Errorf("Load err = %v, want load PersistenceError wrapping context.Canceled", err)
	}
	if _, err := s.Append(ctx, event("x", logic.KindLost, "2024-03-01T10:00:00")); !errors.Is(err, context.Canceled) {
		t.Errorf("Append err = %v, want context.Canceled", err)
	}
}

func TestFileCorruptLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.json")
	if err := os.WriteFile(path, []byte(`{"2024-03-01": [{"id": "x", "kind":`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(Config{Driver: "json", Path: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err = s.Load(context.Background())
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CorruptError, got %v", err)
	}
	if ce.Path != path {
		t.Errorf("Path: got %s, want %s", ce.Path, path)
	}

	// Append on a corrupt file refuses to overwrite it.
	_, err = s.Append(context.Background(), event("y", logic.KindLost, "2024-03-01T10:00:00"))
	var pe *PersistenceError
	if !errors.As(err, &pe) || !IsCorrupt(err) {
		t.Errorf("expected PersistenceError wrapping CorruptError, got %v", err)
	}
}

func TestFileUnknownKindIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.json")
	os.WriteFile(path, []byte(`{"2024-03-01":[{"id":"x","kind":"FLICKER","time":"2024-03-01T10:00:00Z"}]}`), 0o644)
	s, _ := Open(Config{Driver: "json", Path: path}, zerolog.Nop())
	if _, err := s.Load(context.Background()); !IsCorrupt(err) {
		t.Errorf("expected corrupt error, got %v", err)
	}
}

func TestFileLegacyKindNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.json")
	os.WriteFile(path, []byte(`{"2024-03-01":[{"id":"x","kind":"断电","time":"2024-03-01T10:00:00+08:00"}]}`), 0o644)
	s, _ := Open(Config{Driver: "json", Path: path}, zerolog.Nop())
	l, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l["2024-03-01"][0].Kind != logic.KindLost {
		t.Errorf("kind: got %s, want POWER_LOST", l["2024-03-01"][0].Kind)
	}
}

func TestFileBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "power-log.json")
	garbage := []byte("not json at all")
	os.WriteFile(path, garbage, 0o644)

	fs, err := openFile(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	fs.now = func() time.Time { return time.Unix(1700000000, 0) }

	backup, err := fs.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backup != path+".corrupt-1700000000" {
		t.Errorf("backup path: got %s", backup)
	}
	data, err := os.ReadFile(backup)
	if err != nil || string(data) != string(garbage) {
		t.Errorf("backup content: got %q, %v", data, err)
	}

	l, err := fs.Load(context.Background())
	if err != nil || l.Len() != 0 {
		t.Errorf("Load after backup: got %v, %v; want empty log", l, err)
	}

	// Nothing left to back up.
	if b, err := fs.Backup(); b != "" || err != nil {
		t.Errorf("second Backup: got %q, %v", b, err)
	}
}

func TestFileFailedWriteLeavesPreviousState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.json")
	fs, err := openFile(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := fs.Append(ctx, event("e1", logic.KindLost, "2024-03-01T10:00:00")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	before, _ := os.ReadFile(path)

	// Die half way through writing the replacement.
	fs.writeFile = func(p string, data []byte) error {
		os.WriteFile(p+".partial", data[:len(data)/2], 0o644)
		return errors.New("no space left on device")
	}

	_, err = fs.Append(ctx, event("e2", logic.KindRestored, "2024-03-01T11:00:00"))
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if pe.Op != "append" {
		t.Errorf("Op: got %s", pe.Op)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("failed append modified the persisted file")
	}
	l, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 1 || l["2024-03-01"][0].ID != "e1" {
		t.Errorf("Load after failed append: got %+v", l)
	}
}

func TestAtomicWriteFileNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "power-log.json")
	if err := atomicWriteFile(path, []byte("{}\n")); err != nil {
		t.Fatalf("atomicWriteFile: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	if err := atomicWriteFile(filepath.Join(dir, "missing", "x.json"), []byte("{}")); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}

func TestFilePrettyPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.json")
	s, _ := Open(Config{Driver: "json", Path: path}, zerolog.Nop())
	s.Append(context.Background(), event("e1", logic.KindLost, "2024-03-01T10:00:00"))

	data, _ := os.ReadFile(path)
	for _, want := range []string{`"2024-03-01": [`, `"id": "e1"`, `"kind": "POWER_LOST"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("file missing %q:\n%s", want, data)
		}
	}
}

func TestSQLiteCorruptAndBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.db")
	os.WriteFile(path, []byte(strings.Repeat("this is not a sqlite database ", 200)), 0o644)

	s, err := openSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	defer s.Close()
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	if _, err := s.Load(context.Background()); !IsCorrupt(err) {
		t.Fatalf("expected corrupt error, got %v", err)
	}

	backup, err := s.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backup != path+".corrupt-1700000000" {
		t.Errorf("backup path: got %s", backup)
	}

	if _, err := s.Append(context.Background(), event("e1", logic.KindLost, "2024-03-01T10:00:00")); err != nil {
		t.Fatalf("Append after backup: %v", err)
	}
	l, err := s.Load(context.Background())
	if err != nil || l.Len() != 1 {
		t.Errorf("Load after backup: got %v, %v", l, err)
	}
}

func TestSQLiteDuplicateIDRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power-log.db")
	s, err := openSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	s.Append(ctx, event("dup", logic.KindLost, "2024-03-01T10:00:00"))
	_, err = s.Append(ctx, event("dup", logic.KindRestored, "2024-03-01T11:00:00"))
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PersistenceError on duplicate id, got %v", err)
	}

	l, _ := s.Load(ctx)
	if l.Len() != 1 || l["2024-03-01"][0].Kind != logic.KindLost {
		t.Errorf("failed append changed the log: %+v", l)
	}

	// A replace that fails half way leaves the old rows.
	bad := logic.Log{"2024-03-02": {
		event("same", logic.KindRestored, "2024-03-02T11:00:00"),
		event("same", logic.KindLost, "2024-03-02T10:00:00"),
	}}
	if err := s.Replace(ctx, bad); err == nil {
		t.Fatal("expected error replacing with duplicate ids")
	}
	l, _ = s.Load(ctx)
	if l.Len() != 1 || l["2024-03-01"][0].ID != "dup" {
		t.Errorf("failed replace changed the log: %+v", l)
	}
}
