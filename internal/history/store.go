package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS inputs (
	list    TEXT NOT NULL,
	input   TEXT NOT NULL,
	used_at INTEGER NOT NULL,
	PRIMARY KEY (list, input)
);
CREATE TABLE IF NOT EXISTS recent_lists (
	name    TEXT PRIMARY KEY,
	used_at INTEGER NOT NULL
);`

// Store persists inputs per list and the recently used list names.
type Store interface {
	Inputs(ctx context.Context, list string, limit int) ([]string, error)
	AddInput(ctx context.Context, list, input string) error
	Recent(ctx context.Context, limit int) ([]string, error)
	Touch(ctx context.Context, name string) error
	Close() error
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	now       func() time.Time
	closeOnce sync.Once
	closeErr  error
}

// DefaultPath returns $XDG_STATE_HOME/tmux-popup-list/history.db, falling
// back to ~/.local/state.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "tmux-popup-list", "history.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "tmux-popup-list", "history.db"), nil
}

// OpenSQLite opens (and creates) the store at path. ":memory:" keeps the
// data in memory.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := "file::memory:?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) stamp() int64 {
	return s.now().UnixNano()
}

func (s *SQLiteStore) Inputs(ctx context.Context, list string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT input FROM inputs WHERE list = ? ORDER BY used_at DESC LIMIT ?`, list, limit)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var input string
		if err := rows.Scan(&input); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		out = append(out, input)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first, matching the in-memory ring.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) AddInput(ctx context.Context, list, input string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inputs (list, input, used_at) VALUES (?, ?, ?)
		 ON CONFLICT (list, input) DO UPDATE SET used_at = excluded.used_at`,
		list, input, s.stamp())
	if err != nil {
		return fmt.Errorf("add input: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM recent_lists ORDER BY used_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Touch(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recent_lists (name, used_at) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET used_at = excluded.used_at`,
		name, s.stamp())
	if err != nil {
		return fmt.Errorf("touch recent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
