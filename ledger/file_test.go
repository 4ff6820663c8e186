// ABOUTME: Tests for the JSON-file ledger backend.
// ABOUTME: Covers lazy creation, allocation, status history, attachment, reopen persistence, and the journal.
package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileLedger(t *testing.T, opts ...Option) *FileLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project", "metadata.json")
	l, err := OpenFile(path, opts...)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	return l
}

func TestOpenFile_CreatesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project", "metadata.json")

	if _, err := OpenFile(path); err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "project")); !os.IsNotExist(err) {
		t.Error("opening the ledger created its directory")
	}
}

func TestAllocate_DefaultsToPending(t *testing.T) {
	l := newTestFileLedger(t)

	name, err := l.Allocate("trial", Allocation{RelPath: "sub/group", ParamHash: "abc123"})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	rec, err := l.Record("trial", name)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("Status = %q, want %q", rec.Status, StatusPending)
	}
	if rec.RelPath != "sub/group" {
		t.Errorf("RelPath = %q, want %q", rec.RelPath, "sub/group")
	}
	if rec.ParamHash != "abc123" {
		t.Errorf("ParamHash = %q, want %q", rec.ParamHash, "abc123")
	}
	if len(rec.History) != 1 || rec.History[0].Status != StatusPending {
		t.Errorf("History = %v, want one pending entry", rec.History)
	}

	if _, err := os.Stat(l.Path()); err != nil {
		t.Errorf("ledger file not created by first mutation: %v", err)
	}
}

func TestAllocate_RapidNamesDistinct(t *testing.T) {
	l := newTestFileLedger(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		name, err := l.Allocate("trial", Allocation{})
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		if seen[name] {
			t.Fatalf("duplicate run name allocated: %q", name)
		}
		seen[name] = true
	}
}

func TestAllocate_EmptyIdentifier(t *testing.T) {
	l := newTestFileLedger(t)

	if _, err := l.Allocate("", Allocation{}); err == nil {
		t.Error("expected error for empty identifier")
	}
}

func TestAllocate_FixedClockStampsHistory(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	l := newTestFileLedger(t, WithClock(func() time.Time { return at }))

	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	rec, err := l.Record("trial", name)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !rec.History[0].At.Equal(at) {
		t.Errorf("history timestamp = %v, want %v", rec.History[0].At, at)
	}
}

func TestSetStatus_AppendsHistory(t *testing.T) {
	l := newTestFileLedger(t)

	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.SetStatus("trial", name, StatusRunning); err != nil {
		t.Fatalf("SetStatus running failed: %v", err)
	}
	if err := l.SetStatus("trial", name, StatusDone); err != nil {
		t.Fatalf("SetStatus done failed: %v", err)
	}

	rec, err := l.Record("trial", name)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.Status != StatusDone {
		t.Errorf("Status = %q, want %q", rec.Status, StatusDone)
	}
	wantHistory := []Status{StatusPending, StatusRunning, StatusDone}
	if len(rec.History) != len(wantHistory) {
		t.Fatalf("history has %d entries, want %d", len(rec.History), len(wantHistory))
	}
	for i, want := range wantHistory {
		if rec.History[i].Status != want {
			t.Errorf("history[%d] = %q, want %q", i, rec.History[i].Status, want)
		}
	}
	for i := 1; i < len(rec.History); i++ {
		if rec.History[i].At.Before(rec.History[i-1].At) {
			t.Errorf("history timestamps regress at %d: %v before %v", i, rec.History[i].At, rec.History[i-1].At)
		}
	}
}

func TestSetStatus_UnknownRun(t *testing.T) {
	l := newTestFileLedger(t)

	err := l.SetStatus("trial", "trial_missing", StatusDone)
	var notFound *RunNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *RunNotFoundError", err)
	}
	if notFound.Identifier != "trial" || notFound.Name != "trial_missing" {
		t.Errorf("RunNotFoundError = %+v, want identifier and name populated", notFound)
	}
}

func TestAttachFiles_MergesAndOverwrites(t *testing.T) {
	l := newTestFileLedger(t)

	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.AttachFiles("trial", name, map[string]string{"metrics": "/a/metrics.json", "log": "/a/log.txt"}); err != nil {
		t.Fatalf("first AttachFiles failed: %v", err)
	}
	if err := l.AttachFiles("trial", name, map[string]string{"log": "/b/log.txt", "model": "/b/model.bin"}); err != nil {
		t.Fatalf("second AttachFiles failed: %v", err)
	}

	rec, err := l.Record("trial", name)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	want := map[string]string{
		"metrics": "/a/metrics.json",
		"log":     "/b/log.txt",
		"model":   "/b/model.bin",
	}
	if len(rec.Files) != len(want) {
		t.Fatalf("Files = %v, want %v", rec.Files, want)
	}
	for tag, path := range want {
		if rec.Files[tag] != path {
			t.Errorf("Files[%q] = %q, want %q", tag, rec.Files[tag], path)
		}
	}
}

func TestAttachFiles_UnknownRun(t *testing.T) {
	l := newTestFileLedger(t)

	err := l.AttachFiles("trial", "trial_missing", map[string]string{"metrics": "/x"})
	var notFound *RunNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want *RunNotFoundError", err)
	}
}

func TestRecords_UnknownIdentifier(t *testing.T) {
	l := newTestFileLedger(t)

	_, err := l.Records("ghost")
	var notFound *RunNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *RunNotFoundError", err)
	}
	if notFound.Identifier != "ghost" || notFound.Name != "" {
		t.Errorf("RunNotFoundError = %+v, want bare identifier", notFound)
	}
}

func TestRecords_ReturnsAllRuns(t *testing.T) {
	l := newTestFileLedger(t)

	first, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	second, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	recs, err := l.Records("trial")
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Records returned %d runs, want 2", len(recs))
	}
	for _, name := range []string{first, second} {
		if recs[name] == nil {
			t.Errorf("Records missing run %q", name)
		}
	}
}

func TestFindByParamHash(t *testing.T) {
	l := newTestFileLedger(t)

	name, err := l.Allocate("trial", Allocation{ParamHash: "h1"})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err := l.Allocate("trial", Allocation{ParamHash: "h2"}); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	got, found, err := l.FindByParamHash("trial", "h1")
	if err != nil {
		t.Fatalf("FindByParamHash failed: %v", err)
	}
	if !found || got != name {
		t.Errorf("FindByParamHash = (%q, %v), want (%q, true)", got, found, name)
	}

	if _, found, _ := l.FindByParamHash("trial", "unknown"); found {
		t.Error("found a run for an unknown hash")
	}
	if _, found, _ := l.FindByParamHash("ghost", "h1"); found {
		t.Error("found a run for an unknown identifier")
	}
	if _, found, _ := l.FindByParamHash("trial", ""); found {
		t.Error("empty hash should never match")
	}
}

func TestFileLedger_ReopenSeesPriorRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")

	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	name, err := l.Allocate("trial", Allocation{ParamHash: "h1"})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.SetStatus("trial", name, StatusDone); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("second OpenFile failed: %v", err)
	}
	rec, err := reopened.Record("trial", name)
	if err != nil {
		t.Fatalf("Record after reopen failed: %v", err)
	}
	if rec.Status != StatusDone {
		t.Errorf("Status after reopen = %q, want %q", rec.Status, StatusDone)
	}
	if len(rec.History) != 2 {
		t.Errorf("history after reopen has %d entries, want 2", len(rec.History))
	}
}

func TestFileLedger_LeavesValidJSON(t *testing.T) {
	l := newTestFileLedger(t)

	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.AttachFiles("trial", name, map[string]string{"metrics": "/m.json"}); err != nil {
		t.Fatalf("AttachFiles failed: %v", err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("reading ledger file failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Errorf("ledger file is not valid JSON: %v", err)
	}
}

func TestFileLedger_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatalf("writing corrupt ledger failed: %v", err)
	}

	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := l.Allocate("trial", Allocation{}); err == nil {
		t.Error("expected error mutating a corrupt ledger")
	}
}

func TestJournal_RecordsMutations(t *testing.T) {
	l := newTestFileLedger(t)

	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.SetStatus("trial", name, StatusRunning); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := l.AttachFiles("trial", name, map[string]string{"b": "/b", "a": "/a"}); err != nil {
		t.Fatalf("AttachFiles failed: %v", err)
	}

	entries, err := l.Journal().Tail(0)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("journal has %d entries, want 3", len(entries))
	}
	wantOps := []string{"allocate", "status", "attach"}
	for i, want := range wantOps {
		if entries[i].Op != want {
			t.Errorf("entry %d op = %q, want %q", i, entries[i].Op, want)
		}
		if entries[i].Run != name {
			t.Errorf("entry %d run = %q, want %q", i, entries[i].Run, name)
		}
	}
	if len(entries[2].Tags) != 2 || entries[2].Tags[0] != "a" || entries[2].Tags[1] != "b" {
		t.Errorf("attach entry tags = %v, want sorted [a b]", entries[2].Tags)
	}

	last, err := l.Journal().Tail(1)
	if err != nil {
		t.Fatalf("Tail(1) failed: %v", err)
	}
	if len(last) != 1 || last[0].Op != "attach" {
		t.Errorf("Tail(1) = %v, want the attach entry", last)
	}
}

func TestJournal_TailOnMissingFile(t *testing.T) {
	l := newTestFileLedger(t)

	entries, err := l.Journal().Tail(10)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestAll_GroupsByIdentifier(t *testing.T) {
	l := newTestFileLedger(t)

	if _, err := l.Allocate("alpha", Allocation{}); err != nil {
		t.Fatalf("Allocate alpha failed: %v", err)
	}
	if _, err := l.Allocate("alpha", Allocation{}); err != nil {
		t.Fatalf("Allocate alpha failed: %v", err)
	}
	if _, err := l.Allocate("beta", Allocation{}); err != nil {
		t.Fatalf("Allocate beta failed: %v", err)
	}

	all, err := l.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All returned %d identifiers, want 2", len(all))
	}
	if len(all["alpha"]) != 2 {
		t.Errorf("alpha has %d runs, want 2", len(all["alpha"]))
	}
	if len(all["beta"]) != 1 {
		t.Errorf("beta has %d runs, want 1", len(all["beta"]))
	}
}

func TestFileLedger_CounterNaming(t *testing.T) {
	l := newTestFileLedger(t, WithNaming(CounterName(3)))

	for i, want := range []string{"000", "001", "002"} {
		got, err := l.Allocate("trial", Allocation{})
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		if got != want {
			t.Errorf("allocation %d = %q, want %q", i, got, want)
		}
	}
}
