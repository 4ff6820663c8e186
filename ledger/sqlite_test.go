// ABOUTME: Tests for the SQLite ledger backend.
// ABOUTME: Covers the same allocation, status, attachment, and lookup behavior as the file backend.
package ledger

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLiteLedger(t *testing.T, opts ...Option) *SQLiteLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	l, err := OpenSQLite(path, opts...)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSQLite_AllocateAndRecord(t *testing.T) {
	l := newTestSQLiteLedger(t)

	name, err := l.Allocate("trial", Allocation{RelPath: "sub", ParamHash: "h1"})
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
	if rec.RelPath != "sub" || rec.ParamHash != "h1" {
		t.Errorf("record = %+v, want rel_path and param_hash persisted", rec)
	}
	if len(rec.History) != 1 || rec.History[0].Status != StatusPending {
		t.Errorf("History = %v, want one pending entry", rec.History)
	}
}

func TestSQLite_StatusHistory(t *testing.T) {
	l := newTestSQLiteLedger(t)

	name, err := l.Allocate("trial", Allocation{Status: StatusRunning})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.SetStatus("trial", name, StatusError); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	rec, err := l.Record("trial", name)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.Status != StatusError {
		t.Errorf("Status = %q, want %q", rec.Status, StatusError)
	}
	want := []Status{StatusRunning, StatusError}
	if len(rec.History) != len(want) {
		t.Fatalf("history has %d entries, want %d", len(rec.History), len(want))
	}
	for i, st := range want {
		if rec.History[i].Status != st {
			t.Errorf("history[%d] = %q, want %q", i, rec.History[i].Status, st)
		}
	}
}

func TestSQLite_SetStatusUnknownRun(t *testing.T) {
	l := newTestSQLiteLedger(t)

	err := l.SetStatus("trial", "trial_missing", StatusDone)
	var notFound *RunNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want *RunNotFoundError", err)
	}
}

func TestSQLite_AttachFilesUpserts(t *testing.T) {
	l := newTestSQLiteLedger(t)

	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.AttachFiles("trial", name, map[string]string{"metrics": "/a", "log": "/l"}); err != nil {
		t.Fatalf("first AttachFiles failed: %v", err)
	}
	if err := l.AttachFiles("trial", name, map[string]string{"metrics": "/b"}); err != nil {
		t.Fatalf("second AttachFiles failed: %v", err)
	}

	rec, err := l.Record("trial", name)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.Files["metrics"] != "/b" || rec.Files["log"] != "/l" {
		t.Errorf("Files = %v, want metrics overwritten and log kept", rec.Files)
	}
}

func TestSQLite_AttachFilesUnknownRun(t *testing.T) {
	l := newTestSQLiteLedger(t)

	err := l.AttachFiles("trial", "trial_missing", map[string]string{"metrics": "/x"})
	var notFound *RunNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want *RunNotFoundError", err)
	}
}

func TestSQLite_RecordsUnknownIdentifier(t *testing.T) {
	l := newTestSQLiteLedger(t)

	_, err := l.Records("ghost")
	var notFound *RunNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *RunNotFoundError", err)
	}
	if notFound.Identifier != "ghost" {
		t.Errorf("Identifier = %q, want %q", notFound.Identifier, "ghost")
	}
}

func TestSQLite_FindByParamHash(t *testing.T) {
	l := newTestSQLiteLedger(t)

	name, err := l.Allocate("trial", Allocation{ParamHash: "h1"})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	got, found, err := l.FindByParamHash("trial", "h1")
	if err != nil {
		t.Fatalf("FindByParamHash failed: %v", err)
	}
	if !found || got != name {
		t.Errorf("FindByParamHash = (%q, %v), want (%q, true)", got, found, name)
	}
	if _, found, _ := l.FindByParamHash("trial", "other"); found {
		t.Error("found a run for an unknown hash")
	}
}

func TestSQLite_ReopenSeesPriorRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")

	l, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	name, err := l.Allocate("trial", Allocation{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := l.SetStatus("trial", name, StatusDone); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("second OpenSQLite failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	rec, err := reopened.Record("trial", name)
	if err != nil {
		t.Fatalf("Record after reopen failed: %v", err)
	}
	if rec.Status != StatusDone {
		t.Errorf("Status after reopen = %q, want %q", rec.Status, StatusDone)
	}
}

func TestSQLite_AllGroupsByIdentifier(t *testing.T) {
	l := newTestSQLiteLedger(t)

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
	if len(all) != 2 || len(all["alpha"]) != 1 || len(all["beta"]) != 1 {
		t.Errorf("All = %v, want one run each under alpha and beta", all)
	}
}

func TestSQLite_CounterNaming(t *testing.T) {
	l := newTestSQLiteLedger(t, WithNaming(CounterName(3)))

	for i, want := range []string{"000", "001"} {
		got, err := l.Allocate("trial", Allocation{})
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		if got != want {
			t.Errorf("allocation %d = %q, want %q", i, got, want)
		}
	}
}
