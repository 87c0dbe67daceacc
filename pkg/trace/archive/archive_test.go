package archive

import (
	"testing"
	"time"
)

func TestKey_JoinsPrefixProjectAndRun(t *testing.T) {
	a := &Archiver{cfg: Config{Prefix: "traces"}}
	got := a.key("proj-1", "run-42")
	want := "traces/proj-1/run-42.xdr"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestKey_EmptyPrefixOmitsLeadingSlash(t *testing.T) {
	a := &Archiver{cfg: Config{}}
	got := a.key("proj-1", "run-42")
	want := "proj-1/run-42.xdr"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestKey_PrefixWithTrailingSlashIsNotDoubled(t *testing.T) {
	a := &Archiver{cfg: Config{Prefix: "traces/"}}
	got := a.key("proj-1", "run-42")
	want := "traces/proj-1/run-42.xdr"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRetentionDeadline_AddsRetentionWindow(t *testing.T) {
	archivedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := RetentionDeadline(archivedAt, 30*24*time.Hour)
	if !deadline.Equal(archivedAt.Add(30 * 24 * time.Hour)) {
		t.Fatalf("unexpected deadline: %v", deadline)
	}
}
