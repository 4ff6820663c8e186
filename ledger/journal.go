// ABOUTME: Append-only JSONL journal of ledger mutations, one JSON object per line.
// ABOUTME: The trail is the toolkit's operational log; Tail reads the most recent entries.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one journaled ledger mutation.
type Entry struct {
	Op         string   `json:"op"`
	Identifier string   `json:"identifier"`
	Run        string   `json:"run,omitempty"`
	Status     string   `json:"status,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	At         string   `json:"at"`
}

// Journal appends ledger mutations to a JSONL file beside the ledger.
// Appends create the file and its directory on first use.
type Journal struct {
	path string
}

// NewJournal creates a journal writing to path. Nothing is created until the
// first append.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file's location.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one entry as a JSON line.
func (j *Journal) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// Tail returns the last n entries, oldest first. A journal that does not
// exist yet yields no entries. n <= 0 returns everything.
func (j *Journal) Tail(n int) ([]Entry, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return []Entry{}, nil
	}

	lines := strings.Split(content, "\n")
	entries := make([]Entry, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
