// ABOUTME: Session is a caller-held handle on one run: lifecycle, folder, and artifacts.
// ABOUTME: Sessions resume earlier runs by parameter hash and materialize files into the run's folder.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meridian-research/quarry/ledger"
	"github.com/meridian-research/quarry/maputil"
)

// StorageMode controls where a session's files live within the group.
type StorageMode string

const (
	// StorageSubfolder nests each run's files in a directory named by the
	// run name. The default.
	StorageSubfolder StorageMode = "subfolder"

	// StoragePrefix keeps files directly in the group directory, prefixing
	// file names with the run name instead.
	StoragePrefix StorageMode = "prefix"
)

// Policy decides what Session does when a run with the same parameters
// already exists.
type Policy string

const (
	// PolicyResume reuses the existing run whose parameter hash matches.
	// The default. Without parameters there is nothing to match, so a new
	// run is allocated.
	PolicyResume Policy = "resume"

	// PolicyAlwaysNew allocates a fresh run regardless of history.
	PolicyAlwaysNew Policy = "new"
)

// Session is a handle on one run of an identifier within a group.
type Session struct {
	identifier string
	name       string
	group      *Group
	paramHash  string
	storage    StorageMode
}

type sessionConfig struct {
	params  map[string]any
	policy  Policy
	storage StorageMode
}

// SessionOption configures Session construction.
type SessionOption func(*sessionConfig)

// WithParams records the run's parameters. Their canonical hash is stored on
// the run and drives PolicyResume matching.
func WithParams(params map[string]any) SessionOption {
	return func(c *sessionConfig) { c.params = params }
}

// WithPolicy sets the resume policy. The default is PolicyResume.
func WithPolicy(p Policy) SessionOption {
	return func(c *sessionConfig) { c.policy = p }
}

// WithStorage sets the storage mode. The default is StorageSubfolder.
func WithStorage(m StorageMode) SessionOption {
	return func(c *sessionConfig) { c.storage = m }
}

// Session opens a run handle for identifier. Under PolicyResume with
// parameters, an existing run with the same parameter hash is reused;
// otherwise a new pending run is allocated.
func (g *Group) Session(identifier string, opts ...SessionOption) (*Session, error) {
	if identifier == "" {
		return nil, fmt.Errorf("empty identifier")
	}

	cfg := sessionConfig{policy: PolicyResume, storage: StorageSubfolder}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.policy {
	case PolicyResume, PolicyAlwaysNew:
	default:
		return nil, fmt.Errorf("unknown session policy %q", cfg.policy)
	}
	switch cfg.storage {
	case StorageSubfolder, StoragePrefix:
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.storage)
	}

	hash := ""
	if cfg.params != nil {
		var err error
		hash, err = maputil.Hash(cfg.params)
		if err != nil {
			return nil, fmt.Errorf("hash session params: %w", err)
		}
	}

	name := ""
	if hash != "" && cfg.policy == PolicyResume {
		hit, found, err := g.led.FindByParamHash(identifier, hash)
		if err != nil {
			return nil, fmt.Errorf("find run by param hash: %w", err)
		}
		if found {
			name = hit
		}
	}
	if name == "" {
		var err error
		name, err = g.led.Allocate(identifier, ledger.Allocation{
			RelPath:   g.RelPath(),
			ParamHash: hash,
		})
		if err != nil {
			return nil, fmt.Errorf("allocate session run: %w", err)
		}
	}

	return &Session{
		identifier: identifier,
		name:       name,
		group:      g,
		paramHash:  hash,
		storage:    cfg.storage,
	}, nil
}

// Identifier returns the identifier the session's run belongs to.
func (s *Session) Identifier() string {
	return s.identifier
}

// Name returns the unique run name the session is bound to.
func (s *Session) Name() string {
	return s.name
}

// ParamHash returns the canonical hash of the session's parameters, or ""
// when none were given.
func (s *Session) ParamHash() string {
	return s.paramHash
}

// Begin marks the run running.
func (s *Session) Begin() error {
	return s.group.led.SetStatus(s.identifier, s.name, ledger.StatusRunning)
}

// Done marks the run done.
func (s *Session) Done() error {
	return s.group.led.SetStatus(s.identifier, s.name, ledger.StatusDone)
}

// Fail marks the run errored.
func (s *Session) Fail() error {
	return s.group.led.SetStatus(s.identifier, s.name, ledger.StatusError)
}

// Status returns the run's current lifecycle state.
func (s *Session) Status() (ledger.Status, error) {
	rec, err := s.group.led.Record(s.identifier, s.name)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// IsDone reports whether the run finished successfully.
func (s *Session) IsDone() (bool, error) {
	status, err := s.Status()
	if err != nil {
		return false, err
	}
	return status == ledger.StatusDone, nil
}

// AttachFiles records tag to path mappings on the run.
func (s *Session) AttachFiles(files map[string]string) error {
	return s.group.Attach(s.identifier, s.name, files)
}

// Files returns the run's attached files, tag to path.
func (s *Session) Files() (map[string]string, error) {
	rec, err := s.group.led.Record(s.identifier, s.name)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(rec.Files))
	for tag, path := range rec.Files {
		files[tag] = path
	}
	return files, nil
}

// Folder returns the run's directory, creating it on demand. In subfolder
// mode this is <group>/<run name>; in prefix mode it is the group directory
// itself.
func (s *Session) Folder() (string, error) {
	dir := s.group.Dir()
	if s.storage == StorageSubfolder {
		dir = filepath.Join(dir, s.name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create run folder: %w", err)
	}
	return dir, nil
}

// FilePath returns where a file of the given name belongs for this run,
// creating the run folder on demand. The file name joins the run name (in
// prefix mode), the identifier, and name with underscores.
func (s *Session) FilePath(name string) (string, error) {
	folder, err := s.Folder()
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, 3)
	if s.storage == StoragePrefix {
		parts = append(parts, s.name)
	}
	parts = append(parts, s.identifier)
	if name != "" {
		parts = append(parts, name)
	}
	return filepath.Join(folder, strings.Join(parts, "_")), nil
}

// Save writes data to the run's folder under name and attaches the written
// path. Returns the path written.
func (s *Session) Save(name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	path, err := s.FilePath(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %q: %w", name, err)
	}
	if err := s.AttachFiles(map[string]string{name: path}); err != nil {
		return "", err
	}
	return path, nil
}

// SaveJSON marshals v with indentation and saves it under name.
func (s *Session) SaveJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %q: %w", name, err)
	}
	return s.Save(name, data)
}

// Import copies an existing file into the run's folder and attaches the
// copy under tag. Returns the path of the copy.
func (s *Session) Import(tag, src string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("empty tag")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read import source: %w", err)
	}

	dst, err := s.FilePath(filepath.Base(src))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("write import copy: %w", err)
	}
	if err := s.AttachFiles(map[string]string{tag: dst}); err != nil {
		return "", err
	}
	return dst, nil
}
