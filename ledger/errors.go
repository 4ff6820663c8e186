// ABOUTME: Typed errors reported by ledger backends.
// ABOUTME: RunNotFoundError covers unknown runs and identifiers with no recorded runs.
package ledger

import "fmt"

// RunNotFoundError indicates a run, or an identifier with no runs at all,
// that the ledger has no record of.
type RunNotFoundError struct {
	Identifier string
	Name       string
}

func (e *RunNotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("identifier %q not found", e.Identifier)
	}
	return fmt.Sprintf("run %q not found for identifier %q", e.Name, e.Identifier)
}
