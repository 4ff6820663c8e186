// ABOUTME: Joins JSON files attached to runs into one flat table per group.
// ABOUTME: Each identifier's runs align by ordinal so parallel sweeps merge row by row.
package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/meridian-research/quarry/ledger"
	"github.com/meridian-research/quarry/maputil"
)

// DecodeFunc turns one attached file's contents into a flat row.
type DecodeFunc func(data []byte) (map[string]any, error)

// Aggregator collects files attached under one tag across many identifiers
// and merges them into result tables.
type Aggregator struct {
	led    ledger.Ledger
	groups map[string][]string
	decode DecodeFunc
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDecoder replaces the default decoder, which parses a JSON object and
// flattens nested keys with maputil.Flatten.
func WithDecoder(fn DecodeFunc) Option {
	return func(a *Aggregator) { a.decode = fn }
}

// New builds an Aggregator reading run metadata from led. groups maps each
// output table name to the identifiers whose runs contribute to it; row
// merge order follows each identifier list.
func New(led ledger.Ledger, groups map[string][]string, opts ...Option) *Aggregator {
	a := &Aggregator{led: led, groups: groups, decode: decodeJSON}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate builds one table per configured group from the files attached
// under fileTag. Within a group, each identifier's runs sort by name and
// contribute one row per ordinal; rows at the same ordinal merge into one,
// tagged with a zero-padded "uid" column. A group's table is as long as its
// shortest identifier's run list.
func (a *Aggregator) Aggregate(fileTag string) (map[string][]map[string]any, error) {
	if fileTag == "" {
		return nil, fmt.Errorf("empty file tag")
	}

	out := make(map[string][]map[string]any, len(a.groups))
	for group, identifiers := range a.groups {
		table, err := a.groupTable(fileTag, identifiers)
		if err != nil {
			return nil, fmt.Errorf("aggregate group %q: %w", group, err)
		}
		out[group] = table
	}
	return out, nil
}

// groupTable merges the identifiers' per-ordinal rows into one table.
func (a *Aggregator) groupTable(fileTag string, identifiers []string) ([]map[string]any, error) {
	columns := make([][]map[string]any, 0, len(identifiers))
	width := -1
	for _, identifier := range identifiers {
		rows, err := a.identifierRows(fileTag, identifier)
		if err != nil {
			return nil, err
		}
		columns = append(columns, rows)
		if width < 0 || len(rows) < width {
			width = len(rows)
		}
	}
	if width < 0 {
		width = 0
	}

	table := make([]map[string]any, 0, width)
	for ordinal := 0; ordinal < width; ordinal++ {
		parts := make([]map[string]any, 0, len(columns)+1)
		for _, rows := range columns {
			parts = append(parts, rows[ordinal])
		}
		parts = append(parts, map[string]any{"uid": fmt.Sprintf("%03d", ordinal)})
		table = append(table, maputil.Merge(parts...))
	}
	return table, nil
}

// identifierRows loads and decodes the tagged file of every run under
// identifier, in sorted run name order.
func (a *Aggregator) identifierRows(fileTag, identifier string) ([]map[string]any, error) {
	recs, err := a.led.Records(identifier)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(recs))
	for name := range recs {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		path, ok := recs[name].Files[fileTag]
		if !ok {
			return nil, fmt.Errorf("run %q of %q has no file for tag %q", name, identifier, fileTag)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q for run %q: %w", fileTag, name, err)
		}
		row, err := a.decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %q for run %q: %w", fileTag, name, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeJSON is the default decoder: parse a JSON object and flatten it.
func decodeJSON(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return maputil.Flatten(doc), nil
}
