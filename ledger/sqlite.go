// ABOUTME: SQLite-backed ledger for projects that outgrow one JSON document.
// ABOUTME: Mirrors the file backend's behavior over runs, run_files, and run_history tables.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Compile-time check that SQLiteLedger implements Ledger.
var _ Ledger = (*SQLiteLedger)(nil)

// SQLiteLedger is a SQLite-backed Ledger. A mutex serializes mutations so
// that name allocation stays read-then-insert safe within one process.
type SQLiteLedger struct {
	db     *sql.DB
	path   string
	naming NamingFunc
	clock  func() time.Time
	mu     sync.Mutex
}

// OpenSQLite opens or creates a SQLite ledger database at the given path,
// creating the parent directory if needed. The schema is applied on open.
func OpenSQLite(path string, opts ...Option) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty ledger path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			identifier TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			rel_path TEXT NOT NULL DEFAULT '',
			param_hash TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (identifier, name)
		);

		CREATE TABLE IF NOT EXISTS run_files (
			identifier TEXT NOT NULL,
			name TEXT NOT NULL,
			tag TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (identifier, name, tag),
			FOREIGN KEY (identifier, name) REFERENCES runs(identifier, name)
		);

		CREATE TABLE IF NOT EXISTS run_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			at TEXT NOT NULL,
			FOREIGN KEY (identifier, name) REFERENCES runs(identifier, name)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	c := newConfig(opts)
	return &SQLiteLedger{db: db, path: path, naming: c.naming, clock: c.clock}, nil
}

// Path returns the database file's location.
func (s *SQLiteLedger) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// Allocate creates a new run under identifier and returns its unique name.
func (s *SQLiteLedger) Allocate(identifier string, alloc Allocation) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("empty identifier")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.namesUnlocked(identifier)
	if err != nil {
		return "", err
	}
	name, err := s.naming(identifier, existing)
	if err != nil {
		return "", fmt.Errorf("name run for %q: %w", identifier, err)
	}

	status := alloc.Status
	if status == "" {
		status = StatusPending
	}
	at := s.clock().Format(timeFormat)

	_, err = s.db.Exec(
		"INSERT INTO runs (identifier, name, status, rel_path, param_hash) VALUES (?, ?, ?, ?, ?)",
		identifier, name, string(status), alloc.RelPath, alloc.ParamHash)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO run_history (identifier, name, status, at) VALUES (?, ?, ?, ?)",
		identifier, name, string(status), at)
	if err != nil {
		return "", fmt.Errorf("insert run history: %w", err)
	}
	return name, nil
}

// SetStatus transitions a run and appends a history entry.
func (s *SQLiteLedger) SetStatus(identifier, name string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE runs SET status = ? WHERE identifier = ? AND name = ?",
		string(status), identifier, name)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n == 0 {
		return &RunNotFoundError{Identifier: identifier, Name: name}
	}

	_, err = s.db.Exec(
		"INSERT INTO run_history (identifier, name, status, at) VALUES (?, ?, ?, ?)",
		identifier, name, string(status), s.clock().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert run history: %w", err)
	}
	return nil
}

// AttachFiles records tag to path mappings on a run.
func (s *SQLiteLedger) AttachFiles(identifier, name string, files map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.existsUnlocked(identifier, name); err != nil {
		return err
	}

	tags := make([]string, 0, len(files))
	for tag := range files {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		_, err := s.db.Exec(
			`INSERT INTO run_files (identifier, name, tag, path) VALUES (?, ?, ?, ?)
			 ON CONFLICT(identifier, name, tag) DO UPDATE SET path = excluded.path`,
			identifier, name, tag, files[tag])
		if err != nil {
			return fmt.Errorf("upsert run file %q: %w", tag, err)
		}
	}
	return nil
}

// Record returns one run's record.
func (s *SQLiteLedger) Record(identifier, name string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordUnlocked(identifier, name)
}

// Records returns all runs for an identifier, keyed by run name.
func (s *SQLiteLedger) Records(identifier string) (map[string]*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordsUnlocked(identifier)
}

// FindByParamHash returns the first run under identifier whose parameter
// hash equals hash, scanning names in sorted order.
func (s *SQLiteLedger) FindByParamHash(identifier, hash string) (string, bool, error) {
	if hash == "" {
		return "", false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM runs WHERE identifier = ? AND param_hash = ? ORDER BY name LIMIT 1",
		identifier, hash).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query param hash: %w", err)
	}
	return name, true, nil
}

// All returns every record, keyed by identifier then run name.
func (s *SQLiteLedger) All() (map[string]map[string]*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT DISTINCT identifier FROM runs ORDER BY identifier")
	if err != nil {
		return nil, fmt.Errorf("query identifiers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var identifiers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		identifiers = append(identifiers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]map[string]*RunRecord, len(identifiers))
	for _, id := range identifiers {
		recs, err := s.recordsUnlocked(id)
		if err != nil {
			return nil, err
		}
		out[id] = recs
	}
	return out, nil
}

// namesUnlocked returns the run names under identifier in ascending order.
// Callers must hold the mutex.
func (s *SQLiteLedger) namesUnlocked(identifier string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT name FROM runs WHERE identifier = ? ORDER BY name", identifier)
	if err != nil {
		return nil, fmt.Errorf("query run names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan run name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// existsUnlocked reports a RunNotFoundError when the run is absent. Callers
// must hold the mutex.
func (s *SQLiteLedger) existsUnlocked(identifier, name string) error {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM runs WHERE identifier = ? AND name = ?", identifier, name).Scan(&one)
	if err == sql.ErrNoRows {
		return &RunNotFoundError{Identifier: identifier, Name: name}
	}
	if err != nil {
		return fmt.Errorf("query run: %w", err)
	}
	return nil
}

// recordUnlocked assembles one run's record from all three tables. Callers
// must hold the mutex.
func (s *SQLiteLedger) recordUnlocked(identifier, name string) (*RunRecord, error) {
	rec := &RunRecord{Identifier: identifier, Name: name}

	var status string
	err := s.db.QueryRow(
		"SELECT status, rel_path, param_hash FROM runs WHERE identifier = ? AND name = ?",
		identifier, name).Scan(&status, &rec.RelPath, &rec.ParamHash)
	if err == sql.ErrNoRows {
		return nil, &RunNotFoundError{Identifier: identifier, Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	rec.Status = Status(status)

	fileRows, err := s.db.Query(
		"SELECT tag, path FROM run_files WHERE identifier = ? AND name = ?",
		identifier, name)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer func() { _ = fileRows.Close() }()
	for fileRows.Next() {
		var tag, path string
		if err := fileRows.Scan(&tag, &path); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		if rec.Files == nil {
			rec.Files = map[string]string{}
		}
		rec.Files[tag] = path
	}
	if err := fileRows.Err(); err != nil {
		return nil, err
	}

	histRows, err := s.db.Query(
		"SELECT status, at FROM run_history WHERE identifier = ? AND name = ? ORDER BY seq",
		identifier, name)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer func() { _ = histRows.Close() }()
	for histRows.Next() {
		var st, at string
		if err := histRows.Scan(&st, &at); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		t, err := time.Parse(timeFormat, at)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp for %q: %w", name, err)
		}
		rec.History = append(rec.History, Transition{Status: Status(st), At: t})
	}
	return rec, histRows.Err()
}

// recordsUnlocked returns all runs for an identifier. Callers must hold the
// mutex.
func (s *SQLiteLedger) recordsUnlocked(identifier string) (map[string]*RunRecord, error) {
	names, err := s.namesUnlocked(identifier)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, &RunNotFoundError{Identifier: identifier}
	}

	out := make(map[string]*RunRecord, len(names))
	for _, name := range names {
		rec, err := s.recordUnlocked(identifier, name)
		if err != nil {
			return nil, err
		}
		out[name] = rec
	}
	return out, nil
}
