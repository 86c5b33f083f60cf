// Package store records program runs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("nako4.store")

// ErrNotFound indicates the requested run doesn't exist.
var ErrNotFound = errors.New("run not found")

// Origin names the surface that produced a run.
type Origin string

const (
	OriginCLI    Origin = "cli"
	OriginREPL   Origin = "repl"
	OriginServer Origin = "server"
)

// Run is one recorded compile-and-run.
type Run struct {
	ID       string
	Origin   Origin
	Source   string
	Output   string
	Error    string
	Started  time.Time
	Duration time.Duration
}

// Failed reports whether the run ended with an error.
func (r Run) Failed() bool {
	return r.Error != ""
}

// Store handles SQLite storage for run history.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

var schema = []string{`CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	origin      TEXT NOT NULL,
	source      TEXT NOT NULL,
	output      TEXT NOT NULL,
	error       TEXT NOT NULL,
	started_ns  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS runs_started ON runs (started_ns)`,
}

// Open opens (creating if needed) the history database at path. The path
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}

	log.Debugf("opened history %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record saves r. A missing ID is filled with a new UUID and a zero Started
// time with the current time. It returns the stored run.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, origin, source, output, error, started_ns, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Origin), r.Source, r.Output, r.Error, r.Started.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return Run{}, fmt.Errorf("saving run: %w", err)
	}
	return r, nil
}

// Get retrieves one run by ID.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, origin, source, output, error, started_ns, duration_ns FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	return r, nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, origin, source, output, error, started_ns, duration_ns
		 FROM runs ORDER BY started_ns DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Inputs returns the sources of the last n runs from origin, oldest first,
// for seeding an input history.
func (s *Store) Inputs(ctx context.Context, origin Origin, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source FROM (
			SELECT source, started_ns, rowid FROM runs WHERE origin = ?
			ORDER BY started_ns DESC, rowid DESC LIMIT ?
		 ) ORDER BY started_ns ASC, rowid ASC`, string(origin), n)
	if err != nil {
		return nil, fmt.Errorf("querying inputs: %w", err)
	}
	defer rows.Close()

	var inputs []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scanning input: %w", err)
		}
		inputs = append(inputs, src)
	}
	return inputs, rows.Err()
}

// Clear deletes every recorded run.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs"); err != nil {
		return fmt.Errorf("clearing runs: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		origin   string
		started  int64
		duration int64
	)
	if err := sc.Scan(&r.ID, &origin, &r.Source, &r.Output, &r.Error, &started, &duration); err != nil {
		return Run{}, err
	}
	r.Origin = Origin(origin)
	r.Started = time.Unix(0, started)
	r.Duration = time.Duration(duration)
	return r, nil
}
