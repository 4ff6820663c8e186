// ABOUTME: Lazy, deterministic sweep generation over ordered parameter sets.
// ABOUTME: Validates inputs eagerly and yields a fresh assignment map per combination.
package sweep

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidInput indicates a sweep request that can never produce
// assignments: an empty parameter set, an empty candidate list, or an
// unknown strategy.
var ErrInvalidInput = errors.New("invalid sweep input")

// Strategy selects how candidate lists combine into assignments.
type Strategy string

const (
	// Product enumerates the full Cartesian product of all candidate lists.
	Product Strategy = "product"

	// Zip pairs candidate lists positionally, truncating to the shortest.
	Zip Strategy = "zip"
)

// ParseStrategy converts a strategy name into a Strategy. Unknown names fail
// with an error wrapping ErrInvalidInput.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Product, Zip:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("strategy %q: %w", s, ErrInvalidInput)
	}
}

// Assignment holds exactly one chosen value per parameter.
type Assignment map[string]any

// Generate returns the finite, lazy sequence of assignments for params under
// the given strategy. Validation happens before the first yield: a nil or
// empty parameter set, an empty candidate list, or an unknown strategy fail
// with an error wrapping ErrInvalidInput.
//
// Every yielded Assignment is a fresh map. The sequence is restartable:
// ranging over it again reproduces the identical order, and breaking out of
// a range early is always safe. Candidate lists are snapshotted at Generate
// time, so later mutation of params does not affect the sequence.
func Generate(params *ParamSet, strategy Strategy) (iter.Seq[Assignment], error) {
	names, lists, err := snapshot(params)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case Product:
		return productSeq(names, lists), nil
	case Zip:
		return zipSeq(names, lists), nil
	default:
		return nil, fmt.Errorf("strategy %q: %w", strategy, ErrInvalidInput)
	}
}

// Count reports exactly how many assignments Generate yields for the same
// inputs, without enumerating them.
func Count(params *ParamSet, strategy Strategy) (int, error) {
	_, lists, err := snapshot(params)
	if err != nil {
		return 0, err
	}
	switch strategy {
	case Product:
		n := 1
		for _, list := range lists {
			n *= len(list)
		}
		return n, nil
	case Zip:
		n := len(lists[0])
		for _, list := range lists[1:] {
			if len(list) < n {
				n = len(list)
			}
		}
		return n, nil
	default:
		return 0, fmt.Errorf("strategy %q: %w", strategy, ErrInvalidInput)
	}
}

// snapshot validates params and copies its names and candidate lists so the
// produced sequence is immune to later ParamSet mutation.
func snapshot(params *ParamSet) ([]string, [][]any, error) {
	if params == nil || params.Len() == 0 {
		return nil, nil, fmt.Errorf("empty parameter set: %w", ErrInvalidInput)
	}
	names := params.Names()
	lists := make([][]any, len(names))
	for i, name := range names {
		values := params.data[name]
		if len(values) == 0 {
			return nil, nil, fmt.Errorf("parameter %q has no candidate values: %w", name, ErrInvalidInput)
		}
		lists[i] = append([]any(nil), values...)
	}
	return names, lists, nil
}

// productSeq walks the Cartesian product with an odometer over value
// indices. The last-declared parameter advances fastest.
func productSeq(names []string, lists [][]any) iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		idx := make([]int, len(names))
		for {
			a := make(Assignment, len(names))
			for i, name := range names {
				a[name] = lists[i][idx[i]]
			}
			if !yield(a) {
				return
			}
			i := len(idx) - 1
			for i >= 0 {
				idx[i]++
				if idx[i] < len(lists[i]) {
					break
				}
				idx[i] = 0
				i--
			}
			if i < 0 {
				return
			}
		}
	}
}

func zipSeq(names []string, lists [][]any) iter.Seq[Assignment] {
	n := len(lists[0])
	for _, list := range lists[1:] {
		if len(list) < n {
			n = len(list)
		}
	}
	return func(yield func(Assignment) bool) {
		for row := 0; row < n; row++ {
			a := make(Assignment, len(names))
			for i, name := range names {
				a[name] = lists[i][row]
			}
			if !yield(a) {
				return
			}
		}
	}
}
