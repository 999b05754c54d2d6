// Package history keeps a local SQLite log of explained inputs and the
// explanations produced for them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("history entry not found")

// Record is one explain run.
type Record struct {
	ID        string
	CreatedAt time.Time
	Source    string
	// Excerpt is the head of the input, for listings.
	Excerpt     string
	Model       string
	Device      string
	InputBytes  int
	Truncated   bool
	PromptToks  int
	OutputToks  int
	Stop        string
	Explanation string
	Duration    time.Duration
	// Err is set when the run failed part way; Explanation then holds
	// whatever was emitted before the failure.
	Err string
}

// DefaultPath honours LOGTRAINS_HISTORY, then the user config directory.
func DefaultPath() string {
	if p := os.Getenv("LOGTRAINS_HISTORY"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "logtrains_history.db"
	}
	return filepath.Join(dir, "logtrains", "history.db")
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return fmt.Errorf("configure history store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS explanations (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			source TEXT NOT NULL,
			excerpt TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL,
			device TEXT NOT NULL,
			input_bytes INTEGER NOT NULL,
			truncated INTEGER NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			stop TEXT NOT NULL,
			explanation TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS explanations_created ON explanations (created_at DESC);
	`); err != nil {
		return fmt.Errorf("create explanations table: %w", err)
	}
	return nil
}

// Add stores r, assigning an ID and timestamp when they are unset.
func (s *Store) Add(ctx context.Context, r Record) (Record, error) {
	if s == nil || s.db == nil {
		return r, errors.New("history store is not open")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO explanations (id, created_at, source, excerpt, model, device, input_bytes, truncated,
			prompt_tokens, output_tokens, stop, explanation, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixMilli(), r.Source, r.Excerpt, r.Model, r.Device, r.InputBytes, r.Truncated,
		r.PromptToks, r.OutputToks, r.Stop, r.Explanation, r.Duration.Milliseconds(), r.Err,
	)
	if err != nil {
		return r, fmt.Errorf("insert history entry: %w", err)
	}
	return r, nil
}

const selectCols = `id, created_at, source, excerpt, model, device, input_bytes, truncated,
	prompt_tokens, output_tokens, stop, explanation, duration_ms, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r          Record
		created    int64
		durationMS int64
	)
	if err := row.Scan(&r.ID, &created, &r.Source, &r.Excerpt, &r.Model, &r.Device, &r.InputBytes, &r.Truncated,
		&r.PromptToks, &r.OutputToks, &r.Stop, &r.Explanation, &durationMS, &r.Err); err != nil {
		return Record{}, err
	}
	r.CreatedAt = time.UnixMilli(created)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return r, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCols+` FROM explanations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

// Get looks up a record by ID or by a unique ID prefix.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}
	// Prefix match is literal.
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCols+` FROM explanations WHERE id = ? OR substr(id, 1, length(?)) = ? LIMIT 2`, id, id, id)
	if err != nil {
		return Record{}, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var found []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return Record{}, fmt.Errorf("scan history row: %w", err)
		}
		if r.ID == id {
			return r, nil
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate history rows: %w", err)
	}
	switch len(found) {
	case 0:
		return Record{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return Record{}, fmt.Errorf("id prefix %q is ambiguous", id)
	}
}

// Excerpt returns the first line of text, cut to at most n runes.
func Excerpt(text string, n int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= n {
		return line
	}
	runes := []rune(line)
	return string(runes[:n]) + "..."
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
