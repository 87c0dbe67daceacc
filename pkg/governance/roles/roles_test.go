package roles

import (
	"testing"

	"github.com/chronolab/chronovm/pkg/governance/panel"
)

func TestCapabilityCardinalities(t *testing.T) {
	tests := []struct {
		role Role
		want int
	}{
		{RoleViewer, 3},
		{RoleMaintainer, 6},
		{RoleInstructor, 14},
		{RoleOwner, 21},
	}
	for _, tc := range tests {
		got := len(matrix[tc.role])
		if got != tc.want {
			t.Errorf("%s has %d capabilities, want %d", tc.role, got, tc.want)
		}
	}
}

func TestCapabilitySubsetChain(t *testing.T) {
	order := []Role{RoleViewer, RoleMaintainer, RoleInstructor, RoleOwner}
	for i := 0; i < len(order)-1; i++ {
		lower, higher := matrix[order[i]], matrix[order[i+1]]
		for cap := range lower {
			if !higher[cap] {
				t.Errorf("%s has %s but %s does not, violating the subset chain", order[i], cap, order[i+1])
			}
		}
	}
}

func TestCan_UnknownRole(t *testing.T) {
	d := Can(Role("nobody"), CapViewLayout, nil)
	if d.Granted || d.Code != UnknownRole {
		t.Fatalf("expected unknown_role denial, got %+v", d)
	}
}

func TestCan_UnknownCapability(t *testing.T) {
	d := Can(RoleOwner, Capability("nonsense"), nil)
	if d.Granted || d.Code != UnknownCapability {
		t.Fatalf("expected unknown_capability denial, got %+v", d)
	}
}

func TestCan_InsufficientRole(t *testing.T) {
	d := Can(RoleViewer, CapCreateTemplate, nil)
	if d.Granted || d.Code != InsufficientRole {
		t.Fatalf("expected insufficient_role denial, got %+v", d)
	}
}

func TestCan_PanelLockedDeniesEvenOwner(t *testing.T) {
	ctx := &Context{PanelId: "stack", LockedPanels: []panel.Id{"stack"}}
	d := Can(RoleOwner, CapUpdateTemplate, ctx)
	if d.Granted || d.Code != PanelLocked {
		t.Fatalf("expected panel_locked denial for owner on a locked panel, got %+v", d)
	}
}

func TestCanAll_ShortCircuitsOnFirstDenial(t *testing.T) {
	d := CanAll(RoleViewer, []Capability{CapViewLayout, CapCreateTemplate, CapRollbackTemplate}, nil)
	if d.Granted || d.Code != InsufficientRole {
		t.Fatalf("expected CanAll to deny on the first missing capability, got %+v", d)
	}
}

func TestCanAny_GrantsOnFirstMatch(t *testing.T) {
	d := CanAny(RoleViewer, []Capability{CapCreateTemplate, CapViewLayout}, nil)
	if !d.Granted {
		t.Fatalf("expected CanAny to grant once any capability matches, got %+v", d)
	}
}

func TestCanAny_ReportsLastDenialWhenNoneGrant(t *testing.T) {
	d := CanAny(RoleViewer, []Capability{CapCreateTemplate, CapRollbackTemplate}, nil)
	if d.Granted {
		t.Fatal("expected denial when no capability is granted")
	}
}

func TestAllCapabilities_HasExactlyTwentyOne(t *testing.T) {
	if got := len(AllCapabilities()); got != 21 {
		t.Fatalf("expected 21 capabilities total, got %d", got)
	}
}
