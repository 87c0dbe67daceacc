package rollback

import (
	"testing"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/roles"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func buildHistory() []template.Layout {
	v1 := template.CreateTemplate("proj-1", "user-1", t0)
	v2 := template.UpdateTemplate(v1, roles.RoleInstructor, "user-2", panel.ModeMap{panel.Stack: panel.Pro}, nil, t0.Add(time.Hour)).Layout
	v3 := template.UpdateTemplate(v2, roles.RoleInstructor, "user-2", panel.ModeMap{panel.Output: panel.Pro}, nil, t0.Add(2*time.Hour)).Layout
	return []template.Layout{v1, v2, v3}
}

func TestReconstructTemplateAtVersion_FindsMatchingEntry(t *testing.T) {
	history := buildHistory()
	layout, err := ReconstructTemplateAtVersion(history, 2)
	if err != nil {
		t.Fatalf("expected version 2 to be found, got %v", err)
	}
	if layout.PanelModes[panel.Stack] != panel.Pro {
		t.Fatal("expected the reconstructed layout to carry version 2's panel state")
	}
}

func TestReconstructTemplateAtVersion_FailsOnMissingVersion(t *testing.T) {
	history := buildHistory()
	if _, err := ReconstructTemplateAtVersion(history, 99); err == nil {
		t.Fatal("expected an error for a version absent from history")
	}
}

func TestPerformRollback_RequiresCapability(t *testing.T) {
	history := buildHistory()
	current := history[2]
	result := PerformRollback(current, 1, history, "user-1", roles.RoleMaintainer, t0.Add(3*time.Hour), "hash-x")
	if result.Ok {
		t.Fatal("expected maintainer to be denied rollback_template")
	}
}

func TestPerformRollback_RejectsOutOfRangeTargetVersion(t *testing.T) {
	history := buildHistory()
	current := history[2]

	if r := PerformRollback(current, 0, history, "user-1", roles.RoleOwner, t0.Add(3*time.Hour), "hash-x"); r.Ok {
		t.Fatal("expected target version 0 to be rejected")
	}
	if r := PerformRollback(current, 3, history, "user-1", roles.RoleOwner, t0.Add(3*time.Hour), "hash-x"); r.Ok {
		t.Fatal("expected target version equal to current to be rejected")
	}
}

func TestPerformRollback_RepublishesAtCurrentPlusOneWithCallerHash(t *testing.T) {
	history := buildHistory()
	current := history[2]

	result := PerformRollback(current, 1, history, "user-1", roles.RoleOwner, t0.Add(3*time.Hour), "caller-supplied-hash")
	if !result.Ok {
		t.Fatalf("expected rollback to succeed, got reason: %s", result.Reason)
	}
	if result.Layout.LayoutVersion != current.LayoutVersion+1 {
		t.Fatalf("expected version %d, got %d", current.LayoutVersion+1, result.Layout.LayoutVersion)
	}
	if result.Layout.PanelModes[panel.Stack] != panel.Learning {
		t.Fatal("expected the rollback to republish version 1's panel state")
	}
	if result.Layout.PreviousHash != "caller-supplied-hash" {
		t.Fatalf("expected PreviousHash to be overridden by the caller-supplied hash, got %q", result.Layout.PreviousHash)
	}
	if len(history) != 3 || history[0].LayoutVersion != 1 {
		t.Fatal("expected PerformRollback to leave history untouched")
	}
}

func TestVerifyRollbackIntegrity_DetectsReusedVersion(t *testing.T) {
	history := buildHistory()
	if err := VerifyRollbackIntegrity(history); err != nil {
		t.Fatalf("expected a clean history to pass, got %v", err)
	}

	reused := history[1].Clone()
	reused.LayoutVersion = 1 // reuse of version 1
	reused.UpdatedAt = t0.Add(5 * time.Hour)
	if err := VerifyRollbackIntegrity(append(append([]template.Layout{}, history...), reused)); err == nil {
		t.Fatal("expected a reused version number to fail integrity")
	}
}
