// ABOUTME: The Ledger interface: the per-project record of every run across all groups.
// ABOUTME: Backends share allocation, status, attachment, and lookup semantics.
package ledger

import "time"

// Ledger records runs for a project. Implementations must be safe for
// concurrent use within one process; cross-process coordination is out of
// scope.
type Ledger interface {
	// Allocate creates a new run under identifier, named by the configured
	// naming strategy, and returns its unique name. The run starts in
	// alloc.Status (StatusPending when unset) with one history entry.
	Allocate(identifier string, alloc Allocation) (string, error)

	// SetStatus transitions a run to status and appends a history entry.
	// Unknown runs fail with *RunNotFoundError.
	SetStatus(identifier, name string, status Status) error

	// AttachFiles records tag to path mappings on a run, overwriting tags
	// that were already attached. Unknown runs fail with *RunNotFoundError.
	AttachFiles(identifier, name string, files map[string]string) error

	// Record returns one run's record. Unknown runs fail with
	// *RunNotFoundError.
	Record(identifier, name string) (*RunRecord, error)

	// Records returns all runs for an identifier, keyed by run name.
	// An identifier with no runs fails with *RunNotFoundError.
	Records(identifier string) (map[string]*RunRecord, error)

	// FindByParamHash returns the name of the first run under identifier
	// (in sorted name order) whose parameter hash equals hash. The bool
	// reports whether one was found; an unknown identifier is not an error.
	FindByParamHash(identifier, hash string) (string, bool, error)

	// All returns every record, keyed by identifier then run name.
	All() (map[string]map[string]*RunRecord, error)

	// Path returns the location of the backing store.
	Path() string

	// Close releases any resources held by the backend.
	Close() error
}

// config collects backend options shared by all ledger implementations.
type config struct {
	naming NamingFunc
	clock  func() time.Time
}

// Option configures a ledger backend at open time.
type Option func(*config)

// WithNaming sets the naming strategy for allocated runs. The default is
// ULIDName.
func WithNaming(fn NamingFunc) Option {
	return func(c *config) { c.naming = fn }
}

// WithClock sets the time source used for history timestamps. The default is
// time.Now. Tests inject a fixed clock here.
func WithClock(fn func() time.Time) Option {
	return func(c *config) { c.clock = fn }
}

func newConfig(opts []Option) config {
	c := config{naming: ULIDName, clock: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
