// ABOUTME: Pluggable strategies for naming newly allocated runs.
// ABOUTME: ULIDName tags names with allocation time; CounterName keeps zero-padded ordinals.
package ledger

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NamingFunc produces the unique name for a new run under identifier.
// existing holds the names already allocated for that identifier, sorted
// ascending. The returned name must not collide with any existing name.
type NamingFunc func(identifier string, existing []string) (string, error)

// ULIDName is the default naming strategy. It names runs
// "<identifier>_<ULID>": the ULID encodes the allocation time at millisecond
// resolution plus 80 bits of entropy, so names sort by creation time and
// rapid allocations stay distinct.
func ULIDName(identifier string, existing []string) (string, error) {
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	return identifier + "_" + id.String(), nil
}

// CounterName returns a naming strategy that numbers runs with a zero-padded
// per-identifier ordinal ("000", "001", ...). width sets the padding. The
// next ordinal is one past the highest numeric name already allocated, so
// deleted runs never cause collisions.
func CounterName(width int) NamingFunc {
	return func(identifier string, existing []string) (string, error) {
		next := 0
		for _, name := range existing {
			n, err := strconv.Atoi(name)
			if err != nil {
				continue
			}
			if n >= next {
				next = n + 1
			}
		}
		name := fmt.Sprintf("%0*d", width, next)
		if len(name) > width {
			return "", fmt.Errorf("counter %d does not fit in width %d", next, width)
		}
		return name, nil
	}
}

// ParseNameTime recovers the allocation time from a ULID-named run.
func ParseNameTime(name string) (time.Time, error) {
	i := strings.LastIndex(name, "_")
	if i < 0 || i+1 >= len(name) {
		return time.Time{}, fmt.Errorf("run name %q has no ulid suffix", name)
	}
	id, err := ulid.ParseStrict(name[i+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run name %q: %w", name, err)
	}
	return ulid.Time(id.Time()), nil
}
