// ABOUTME: Project and Group handles that organize run output under a root directory.
// ABOUTME: Groups share one ledger and drive the start, attach, finish run workflow.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/meridian-research/quarry/ledger"
)

// PathNotFoundError indicates a finish-time attachment whose path does not
// exist on the filesystem. Tags attached before the failing one stay
// attached.
type PathNotFoundError struct {
	Tag  string
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path for tag %q not found: %s", e.Tag, e.Path)
}

// Group is a named subdirectory scope of a project. All groups of one
// project share the same ledger; only the directory they point at differs.
type Group struct {
	root    string
	relpath string
	led     ledger.Ledger
}

// Project records a root directory and owns the shared ledger. Groups are
// made from it; runs live in groups.
type Project struct {
	group *Group
}

type config struct {
	led    ledger.Ledger
	naming ledger.NamingFunc
}

// Option configures a Project at construction.
type Option func(*config)

// WithLedger injects a prepared ledger backend, for example a SQLite ledger,
// in place of the default JSON file at <root>/metadata.json.
func WithLedger(led ledger.Ledger) Option {
	return func(c *config) { c.led = led }
}

// WithNaming sets the naming strategy of the default file ledger. It cannot
// be combined with WithLedger; configure an injected ledger directly.
func WithNaming(fn ledger.NamingFunc) Option {
	return func(c *config) { c.naming = fn }
}

// New creates a project handle rooted at root. Nothing is created on disk:
// group directories appear when groups are made, and the ledger file appears
// on its first write.
func New(root string, opts ...Option) (*Project, error) {
	if root == "" {
		return nil, fmt.Errorf("empty project root")
	}

	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.led != nil && c.naming != nil {
		return nil, fmt.Errorf("WithNaming applies to the default ledger only")
	}

	led := c.led
	if led == nil {
		var ledgerOpts []ledger.Option
		if c.naming != nil {
			ledgerOpts = append(ledgerOpts, ledger.WithNaming(c.naming))
		}
		var err error
		led, err = ledger.OpenFile(filepath.Join(root, "metadata.json"), ledgerOpts...)
		if err != nil {
			return nil, fmt.Errorf("open project ledger: %w", err)
		}
	}

	return &Project{group: &Group{root: root, led: led}}, nil
}

// Root returns the project's root-level group, for runs that belong to no
// named group.
func (p *Project) Root() *Group {
	return p.group
}

// Group returns a group named directly under the project root, creating its
// directory. See (*Group).Group.
func (p *Project) Group(name string) (*Group, error) {
	return p.group.Group(name)
}

// Dir returns the project's root directory.
func (p *Project) Dir() string {
	return p.group.Dir()
}

// Ledger returns the project-wide ledger.
func (p *Project) Ledger() ledger.Ledger {
	return p.group.led
}

// Close releases the project's ledger.
func (p *Project) Close() error {
	return p.group.led.Close()
}

// Dir returns the directory this group represents.
func (g *Group) Dir() string {
	return filepath.Join(g.root, g.relpath)
}

// RelPath returns the group's path relative to the project root, in slash
// form. Empty for the root group.
func (g *Group) RelPath() string {
	return filepath.ToSlash(g.relpath)
}

// Ledger returns the project-wide ledger shared by every group.
func (g *Group) Ledger() ledger.Ledger {
	return g.led
}

// EnsureDir creates the group's directory if it is missing.
func (g *Group) EnsureDir() error {
	if err := os.MkdirAll(g.Dir(), 0755); err != nil {
		return fmt.Errorf("create group dir: %w", err)
	}
	return nil
}

// Group returns a child group scoped to <relpath>/<name>, creating its
// directory and sharing this group's ledger. Calling it twice with the same
// name yields equivalent handles over the same directory.
func (g *Group) Group(name string) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("empty group name")
	}

	child := &Group{
		root:    g.root,
		relpath: filepath.Join(g.relpath, name),
		led:     g.led,
	}
	if err := child.EnsureDir(); err != nil {
		return nil, err
	}
	return child, nil
}

// Start allocates a unique run name for identifier and marks the run
// running. Only the ledger is touched: no run directory or placeholder file
// is created. Repeated calls yield distinct names.
func (g *Group) Start(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("empty identifier")
	}

	name, err := g.led.Allocate(identifier, ledger.Allocation{RelPath: g.RelPath()})
	if err != nil {
		return "", fmt.Errorf("start %q: %w", identifier, err)
	}
	if err := g.led.SetStatus(identifier, name, ledger.StatusRunning); err != nil {
		return "", fmt.Errorf("start %q: %w", identifier, err)
	}
	return name, nil
}

// Attach records tag to path mappings on an existing run without completing
// it. Paths are cleaned before recording. Unknown runs fail with
// *ledger.RunNotFoundError.
func (g *Group) Attach(identifier, base string, files map[string]string) error {
	cleaned := make(map[string]string, len(files))
	for tag, path := range files {
		cleaned[tag] = filepath.Clean(path)
	}
	return g.led.AttachFiles(identifier, base, cleaned)
}

// Finish attaches files to a previously started run and marks it done.
//
// base must name a run started for identifier in this project; otherwise
// Finish fails with *ledger.RunNotFoundError. Tags are processed in sorted
// order and every path must exist on the filesystem at call time: a missing
// path fails with *PathNotFoundError, and tags attached before the failure
// stay attached. The run is marked done only after every path attaches.
func (g *Group) Finish(identifier, base string, files map[string]string) error {
	if _, err := g.led.Record(identifier, base); err != nil {
		return err
	}

	tags := make([]string, 0, len(files))
	for tag := range files {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		path := filepath.Clean(files[tag])
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return &PathNotFoundError{Tag: tag, Path: path}
			}
			return fmt.Errorf("stat %q: %w", path, err)
		}
		if err := g.led.AttachFiles(identifier, base, map[string]string{tag: path}); err != nil {
			return err
		}
	}

	return g.led.SetStatus(identifier, base, ledger.StatusDone)
}

// Fail marks a previously started run as errored without attaching files.
func (g *Group) Fail(identifier, base string) error {
	return g.led.SetStatus(identifier, base, ledger.StatusError)
}
