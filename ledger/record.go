// ABOUTME: Run records and status vocabulary shared by every ledger backend.
// ABOUTME: A record tracks one run's status, group path, parameter hash, files, and history.
package ledger

import "time"

// timeFormat is the layout used for serializing timestamps to stored strings.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Status is a run's lifecycle state.
type Status string

const (
	// StatusPending marks a run that was allocated but not started.
	StatusPending Status = "pending"

	// StatusRunning marks a run in progress.
	StatusRunning Status = "running"

	// StatusDone marks a run that finished successfully.
	StatusDone Status = "done"

	// StatusError marks a run that failed.
	StatusError Status = "error"
)

// Transition is one entry in a run's status history.
type Transition struct {
	Status Status
	At     time.Time
}

// RunRecord is the ledger's view of a single run.
type RunRecord struct {
	// Identifier is the caller-chosen experiment name the run belongs to.
	Identifier string

	// Name is the unique run name allocated within the identifier.
	Name string

	// Status is the current lifecycle state.
	Status Status

	// RelPath is the run's group path relative to the project root.
	// Empty for the root group.
	RelPath string

	// ParamHash is the canonical hash of the run's parameters, if any.
	ParamHash string

	// Files maps attachment tags to recorded paths.
	Files map[string]string

	// History holds every status transition in order, oldest first.
	History []Transition
}

// Allocation carries the details recorded when a run is allocated.
type Allocation struct {
	// Status is the initial lifecycle state. Defaults to StatusPending.
	Status Status

	// RelPath is the allocating group's path relative to the project root.
	RelPath string

	// ParamHash is the canonical parameter hash, if the caller has one.
	ParamHash string
}
