// ABOUTME: JSON-file ledger backend storing every run record in one metadata document.
// ABOUTME: Mutations reload the file, apply the change, write back atomically, and journal.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ledgerDoc is the on-disk representation of the whole ledger.
type ledgerDoc struct {
	Runs map[string]map[string]*runDoc `json:"runs"`
}

// runDoc is the on-disk representation of one run record.
type runDoc struct {
	Identifier string            `json:"identifier"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	RelPath    string            `json:"rel_path,omitempty"`
	ParamHash  string            `json:"param_hash,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
	History    []transitionDoc   `json:"history"`
}

type transitionDoc struct {
	Status string `json:"status"`
	At     string `json:"at"`
}

// Compile-time check that FileLedger implements Ledger.
var _ Ledger = (*FileLedger)(nil)

// FileLedger is a JSON-file-backed Ledger. The whole document lives in one
// file; every mutation reloads it, applies the change, and writes it back
// via temp-file + rename. A mutex serializes in-process writers. Concurrent
// processes sharing one file are not coordinated.
type FileLedger struct {
	path    string
	journal *Journal
	naming  NamingFunc
	clock   func() time.Time
	mu      sync.Mutex
}

// OpenFile opens a file ledger at path. Neither the file nor its directory
// is created until the first mutation, so opening is free of side effects.
// The journal lives beside the ledger with an .events.jsonl suffix.
func OpenFile(path string, opts ...Option) (*FileLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty ledger path")
	}
	c := newConfig(opts)
	return &FileLedger{
		path:    path,
		journal: NewJournal(journalPath(path)),
		naming:  c.naming,
		clock:   c.clock,
	}, nil
}

// journalPath derives the journal location from the ledger path:
// metadata.json becomes metadata.events.jsonl.
func journalPath(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + ".events.jsonl"
}

// Path returns the ledger file's location.
func (l *FileLedger) Path() string {
	return l.path
}

// Journal returns the ledger's mutation journal.
func (l *FileLedger) Journal() *Journal {
	return l.journal
}

// Close is a no-op; the file ledger holds no open handles between calls.
func (l *FileLedger) Close() error {
	return nil
}

// Allocate creates a new run under identifier and returns its unique name.
func (l *FileLedger) Allocate(identifier string, alloc Allocation) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("empty identifier")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return "", err
	}

	runs := doc.Runs[identifier]
	name, err := l.naming(identifier, sortedNames(runs))
	if err != nil {
		return "", fmt.Errorf("name run for %q: %w", identifier, err)
	}
	if _, taken := runs[name]; taken {
		return "", fmt.Errorf("run %q already exists for identifier %q", name, identifier)
	}

	status := alloc.Status
	if status == "" {
		status = StatusPending
	}
	now := l.clock()
	if runs == nil {
		runs = map[string]*runDoc{}
		doc.Runs[identifier] = runs
	}
	runs[name] = &runDoc{
		Identifier: identifier,
		Name:       name,
		Status:     string(status),
		RelPath:    alloc.RelPath,
		ParamHash:  alloc.ParamHash,
		History:    []transitionDoc{{Status: string(status), At: now.Format(timeFormat)}},
	}

	if err := l.save(doc); err != nil {
		return "", err
	}
	if err := l.journal.Append(Entry{
		Op:         "allocate",
		Identifier: identifier,
		Run:        name,
		Status:     string(status),
		At:         now.Format(timeFormat),
	}); err != nil {
		return "", err
	}
	return name, nil
}

// SetStatus transitions a run and appends a history entry.
func (l *FileLedger) SetStatus(identifier, name string, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	run, ok := doc.Runs[identifier][name]
	if !ok {
		return &RunNotFoundError{Identifier: identifier, Name: name}
	}

	now := l.clock()
	run.Status = string(status)
	run.History = append(run.History, transitionDoc{Status: string(status), At: now.Format(timeFormat)})

	if err := l.save(doc); err != nil {
		return err
	}
	return l.journal.Append(Entry{
		Op:         "status",
		Identifier: identifier,
		Run:        name,
		Status:     string(status),
		At:         now.Format(timeFormat),
	})
}

// AttachFiles records tag to path mappings on a run.
func (l *FileLedger) AttachFiles(identifier, name string, files map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	run, ok := doc.Runs[identifier][name]
	if !ok {
		return &RunNotFoundError{Identifier: identifier, Name: name}
	}

	if run.Files == nil {
		run.Files = map[string]string{}
	}
	tags := make([]string, 0, len(files))
	for tag, path := range files {
		run.Files[tag] = path
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	if err := l.save(doc); err != nil {
		return err
	}
	return l.journal.Append(Entry{
		Op:         "attach",
		Identifier: identifier,
		Run:        name,
		Tags:       tags,
		At:         l.clock().Format(timeFormat),
	})
}

// Record returns one run's record.
func (l *FileLedger) Record(identifier, name string) (*RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	run, ok := doc.Runs[identifier][name]
	if !ok {
		return nil, &RunNotFoundError{Identifier: identifier, Name: name}
	}
	return toRecord(run)
}

// Records returns all runs for an identifier, keyed by run name.
func (l *FileLedger) Records(identifier string) (map[string]*RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	runs, ok := doc.Runs[identifier]
	if !ok || len(runs) == 0 {
		return nil, &RunNotFoundError{Identifier: identifier}
	}

	out := make(map[string]*RunRecord, len(runs))
	for name, run := range runs {
		rec, err := toRecord(run)
		if err != nil {
			return nil, err
		}
		out[name] = rec
	}
	return out, nil
}

// FindByParamHash returns the first run under identifier whose parameter
// hash equals hash, scanning names in sorted order.
func (l *FileLedger) FindByParamHash(identifier, hash string) (string, bool, error) {
	if hash == "" {
		return "", false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return "", false, err
	}
	for _, name := range sortedNames(doc.Runs[identifier]) {
		if doc.Runs[identifier][name].ParamHash == hash {
			return name, true, nil
		}
	}
	return "", false, nil
}

// All returns every record, keyed by identifier then run name.
func (l *FileLedger) All() (map[string]map[string]*RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]*RunRecord, len(doc.Runs))
	for identifier, runs := range doc.Runs {
		byName := make(map[string]*RunRecord, len(runs))
		for name, run := range runs {
			rec, err := toRecord(run)
			if err != nil {
				return nil, err
			}
			byName[name] = rec
		}
		out[identifier] = byName
	}
	return out, nil
}

// load reads the ledger document. A file that does not exist yet is an empty
// ledger, not an error.
func (l *FileLedger) load() (*ledgerDoc, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return &ledgerDoc{Runs: map[string]map[string]*runDoc{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", l.path, err)
	}
	if doc.Runs == nil {
		doc.Runs = map[string]map[string]*runDoc{}
	}
	return &doc, nil
}

// save writes the ledger document back, creating the parent directory on
// first use.
func (l *FileLedger) save(doc *ledgerDoc) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	if err := writeJSONAtomic(l.path, doc); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// toRecord converts the on-disk form, parsing history timestamps.
func toRecord(run *runDoc) (*RunRecord, error) {
	rec := &RunRecord{
		Identifier: run.Identifier,
		Name:       run.Name,
		Status:     Status(run.Status),
		RelPath:    run.RelPath,
		ParamHash:  run.ParamHash,
	}
	if len(run.Files) > 0 {
		rec.Files = make(map[string]string, len(run.Files))
		for tag, path := range run.Files {
			rec.Files[tag] = path
		}
	}
	for _, tr := range run.History {
		at, err := time.Parse(timeFormat, tr.At)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp for %q: %w", run.Name, err)
		}
		rec.History = append(rec.History, Transition{Status: Status(tr.Status), At: at})
	}
	return rec, nil
}

// sortedNames returns a run set's names in ascending order.
func sortedNames(runs map[string]*runDoc) []string {
	names := make([]string, 0, len(runs))
	for name := range runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeJSONAtomic writes a JSON-encoded value to a file using a temp file +
// rename for atomicity.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
