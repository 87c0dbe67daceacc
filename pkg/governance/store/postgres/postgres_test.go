package postgres

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
	s, err := Open(Config{})
	if err != nil {
		t.Fatalf("unexpected error opening test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLayoutRoundTripsThroughJSONColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v1 := template.CreateTemplate("proj-1", "user-1", t0)
	if err := s.PutLayout(ctx, v1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetCurrentLayout(ctx, "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PanelModes[panel.Stack] != panel.Learning {
		t.Fatalf("expected panel modes to round-trip, got %s", got.PanelModes[panel.Stack])
	}

	v2 := template.UpdateTemplate(v1, "instructor", "user-2", panel.ModeMap{panel.Stack: panel.Pro}, []panel.Id{panel.Stack}, t0.Add(time.Hour)).Layout
	if err := s.PutLayout(ctx, v2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := s.GetHistory(ctx, "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if len(history[1].LockedPanels) != 1 || history[1].LockedPanels[0] != panel.Stack {
		t.Fatalf("expected locked panels to round-trip, got %v", history[1].LockedPanels)
	}
}

func TestPutLayout_RejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v1 := template.CreateTemplate("proj-1", "user-1", t0)
	if err := s.PutLayout(ctx, v1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.PutLayout(ctx, v1); !store.IsNotFound(err) && err == nil {
		t.Fatal("expected a duplicate layout version to be rejected")
	}
}

func TestOverrideUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ov := override.CreateOverride("user-1", "proj-1", 1, "laptop", t0)
	ov.Overrides[panel.Stack] = panel.Pro
	if err := s.PutOverride(ctx, ov); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ov.Overrides[panel.Output] = panel.Pro
	if err := s.PutOverride(ctx, ov); err != nil {
		t.Fatalf("unexpected error on upsert: %v", err)
	}

	got, err := s.GetOverride(ctx, "proj-1", "user-1", "laptop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Overrides[panel.Output] != panel.Pro {
		t.Fatal("expected the upsert to have replaced the stored override")
	}

	if err := s.DeleteOverride(ctx, "proj-1", "user-1", "laptop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.GetOverride(ctx, "proj-1", "user-1", "laptop"); !store.IsNotFound(err) {
		t.Fatal("expected the override to be gone after delete")
	}
}

func TestAuditAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e1 := audit.CreateAuditEntry("e1", "proj-1", "user-1", "instructor", t0, audit.ActionTemplateCreate,
		nil, panel.ModeMap{}, panel.ModeMap{}, nil, 1, "")
	if err := s.AppendEntry(ctx, e1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendEntry(ctx, e1); err == nil {
		t.Fatal("expected a duplicate entryId to be rejected")
	}

	list, err := s.ListEntries(ctx, "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.Healthcheck(context.Background()); err != nil {
		t.Fatalf("expected a fresh store to be healthy, got %v", err)
	}
}
