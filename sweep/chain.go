// ABOUTME: Chain composes restartable assignment sequences into their Cartesian product.
// ABOUTME: Per-sequence assignments merge into one map, later sequences winning key collisions.
package sweep

import (
	"iter"

	"github.com/meridian-research/quarry/maputil"
)

// Chain returns the Cartesian product across the given assignment sequences,
// merging one assignment from each into a single combined Assignment. Later
// sequences override earlier ones on key collisions and cycle fastest.
//
// Every input must be restartable, as Generate's sequences are; the result
// is lazy and restartable itself. Chaining no sequences yields a single
// empty assignment.
func Chain(seqs ...iter.Seq[Assignment]) iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		chainFrom(seqs, nil, yield)
	}
}

// chainFrom ranges the remaining sequences recursively, accumulating merged
// assignments. Returns false once yield stops the iteration.
func chainFrom(seqs []iter.Seq[Assignment], acc Assignment, yield func(Assignment) bool) bool {
	if len(seqs) == 0 {
		return yield(maputil.Merge(acc))
	}
	for a := range seqs[0] {
		if !chainFrom(seqs[1:], maputil.Merge(acc, a), yield) {
			return false
		}
	}
	return true
}
