package badger

import (
	"context"
	"testing"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error opening badger store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLayoutHistoryOrderedByVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v1 := template.CreateTemplate("proj-1", "user-1", t0)
	v2 := template.UpdateTemplate(v1, "instructor", "user-2", panel.ModeMap{panel.Stack: panel.Pro}, nil, t0.Add(time.Hour)).Layout
	v3 := template.UpdateTemplate(v2, "instructor", "user-2", panel.ModeMap{panel.Output: panel.Pro}, nil, t0.Add(2*time.Hour)).Layout

	// insert out of order to prove GetHistory sorts by LayoutVersion
	for _, l := range []template.Layout{v3, v1, v2} {
		if err := s.PutLayout(ctx, l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := s.GetHistory(ctx, "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, l := range history {
		if l.LayoutVersion != i+1 {
			t.Fatalf("expected ascending version order, got %v at index %d", l.LayoutVersion, i)
		}
	}

	current, err := s.GetCurrentLayout(ctx, "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.LayoutVersion != 3 {
		t.Fatalf("expected current version 3, got %d", current.LayoutVersion)
	}
}

func TestPutLayout_RejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	v1 := template.CreateTemplate("proj-1", "user-1", t0)
	if err := s.PutLayout(ctx, v1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.PutLayout(ctx, v1); err == nil {
		t.Fatal("expected duplicate version to be rejected")
	}
}

func TestOverrideRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ov := override.CreateOverride("user-1", "proj-1", 1, "laptop", t0)
	ov.Overrides[panel.Stack] = panel.Pro
	if err := s.PutOverride(ctx, ov); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetOverride(ctx, "proj-1", "user-1", "laptop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Overrides[panel.Stack] != panel.Pro {
		t.Fatal("expected the override to round-trip")
	}

	if err := s.DeleteOverride(ctx, "proj-1", "user-1", "laptop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.GetOverride(ctx, "proj-1", "user-1", "laptop"); !store.IsNotFound(err) {
		t.Fatal("expected override to be gone after delete")
	}
}

func TestAuditAppendRejectsDuplicateAndListsInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e1 := audit.CreateAuditEntry("e1", "proj-1", "user-1", "instructor", t0, audit.ActionTemplateCreate,
		nil, panel.ModeMap{}, panel.ModeMap{}, nil, 1, "")
	e2 := audit.CreateAuditEntry("e2", "proj-1", "user-1", "instructor", t0.Add(time.Hour), audit.ActionTemplateUpdate,
		nil, panel.ModeMap{}, panel.ModeMap{}, nil, 2, "h1")

	if err := s.AppendEntry(ctx, e2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendEntry(ctx, e1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendEntry(ctx, e1); err == nil {
		t.Fatal("expected duplicate entryId to be rejected")
	}

	list, err := s.ListEntries(ctx, "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].EntryId != "e1" || list[1].EntryId != "e2" {
		t.Fatalf("expected entries ordered by timestamp, got %+v", list)
	}
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.Healthcheck(context.Background()); err != nil {
		t.Fatalf("expected a fresh store to be healthy, got %v", err)
	}
}
