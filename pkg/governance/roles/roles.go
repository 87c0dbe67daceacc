// Package roles implements the governance layer's role/capability matrix:
// four project roles, twenty-one capabilities arranged as a strict subset
// chain, and the can/canAll/canAny predicates every other governance
// component calls through before mutating shared layout state.
package roles

import "github.com/chronolab/chronovm/pkg/governance/panel"

// Role is one of the four fixed project roles.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleMaintainer Role = "maintainer"
	RoleInstructor Role = "instructor"
	RoleOwner      Role = "owner"
)

// Capability is a single closed-set permission. The 21 capabilities form a
// strict chain: every viewer capability is a maintainer capability, every
// maintainer capability is an instructor capability, every instructor
// capability is an owner capability.
type Capability string

const (
	// Granted to viewer and above (3).
	CapViewLayout        Capability = "view_layout"
	CapViewAuditLog      Capability = "view_audit_log"
	CapViewTemplateHistory Capability = "view_template_history"

	// Granted to maintainer and above (+3 = 6).
	CapEditOwnOverride  Capability = "edit_own_override"
	CapSyncOverride     Capability = "sync_override"
	CapClearOwnOverride Capability = "clear_own_override"

	// Granted to instructor and above (+8 = 14).
	CapCreateTemplate        Capability = "create_template"
	CapUpdateTemplate        Capability = "update_template"
	CapResetTemplate         Capability = "reset_template"
	CapPublishDraft          Capability = "publish_draft"
	CapLockPanel             Capability = "lock_panel"
	CapUnlockPanel           Capability = "unlock_panel"
	CapSetOverrideForOthers  Capability = "set_override_for_others"
	CapClearOverrideForOthers Capability = "clear_override_for_others"

	// Granted to owner only (+7 = 21).
	CapRollbackTemplate    Capability = "rollback_template"
	CapChangeRole          Capability = "change_role"
	CapForceSync           Capability = "force_sync"
	CapDeleteProject       Capability = "delete_project"
	CapManageMembers       Capability = "manage_members"
	CapExportTrace         Capability = "export_trace"
	CapConfigureStepBudget Capability = "configure_step_budget"
)

var viewerCapabilities = []Capability{
	CapViewLayout, CapViewAuditLog, CapViewTemplateHistory,
}

var maintainerOnly = []Capability{
	CapEditOwnOverride, CapSyncOverride, CapClearOwnOverride,
}

var instructorOnly = []Capability{
	CapCreateTemplate, CapUpdateTemplate, CapResetTemplate, CapPublishDraft,
	CapLockPanel, CapUnlockPanel, CapSetOverrideForOthers, CapClearOverrideForOthers,
}

var ownerOnly = []Capability{
	CapRollbackTemplate, CapChangeRole, CapForceSync, CapDeleteProject,
	CapManageMembers, CapExportTrace, CapConfigureStepBudget,
}

// matrix maps every role to its full, already-flattened capability set.
var matrix = buildMatrix()

func buildMatrix() map[Role]map[Capability]bool {
	viewer := toSet(viewerCapabilities)
	maintainer := union(viewer, maintainerOnly)
	instructor := union(maintainer, instructorOnly)
	owner := union(instructor, ownerOnly)

	return map[Role]map[Capability]bool{
		RoleViewer:     viewer,
		RoleMaintainer: maintainer,
		RoleInstructor: instructor,
		RoleOwner:      owner,
	}
}

func toSet(caps []Capability) map[Capability]bool {
	s := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

func union(base map[Capability]bool, extra []Capability) map[Capability]bool {
	s := make(map[Capability]bool, len(base)+len(extra))
	for c := range base {
		s[c] = true
	}
	for _, c := range extra {
		s[c] = true
	}
	return s
}

// AllCapabilities returns every capability granted to RoleOwner, which by
// construction is the complete closed set of 21.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, 21)
	caps = append(caps, viewerCapabilities...)
	caps = append(caps, maintainerOnly...)
	caps = append(caps, instructorOnly...)
	caps = append(caps, ownerOnly...)
	return caps
}

// DenialCode enumerates why can denied a request.
type DenialCode string

const (
	UnknownRole        DenialCode = "unknown_role"
	UnknownCapability  DenialCode = "unknown_capability"
	InsufficientRole   DenialCode = "insufficient_role"
	PanelLocked        DenialCode = "panel_locked"
)

// Decision is the result of a capability check: either granted, or denied
// with a code and human-readable reason.
type Decision struct {
	Granted bool
	Code    DenialCode
	Reason  string
}

// Context carries the optional panel-lock gate applied after the base
// matrix check.
type Context struct {
	PanelId      panel.Id
	LockedPanels []panel.Id
}

// IsValidRole reports whether role is one of the four fixed roles.
func IsValidRole(role Role) bool {
	_, ok := matrix[role]
	return ok
}

// IsValidCapability reports whether cap is one of the 21 known capabilities.
func IsValidCapability(cap Capability) bool {
	_, ok := matrix[RoleOwner][cap]
	return ok
}

// Can is the sole entry point for authorization: it never panics or
// returns an error, only a Decision. A locked panel named in context denies
// every role, including owner, after the base matrix check passes.
func Can(role Role, cap Capability, context *Context) Decision {
	roleSet, ok := matrix[role]
	if !ok {
		return Decision{Granted: false, Code: UnknownRole, Reason: "unrecognised role: " + string(role)}
	}
	if !IsValidCapability(cap) {
		return Decision{Granted: false, Code: UnknownCapability, Reason: "unrecognised capability: " + string(cap)}
	}
	if !roleSet[cap] {
		return Decision{Granted: false, Code: InsufficientRole, Reason: string(role) + " lacks " + string(cap)}
	}
	if context != nil && panelLocked(context.PanelId, context.LockedPanels) {
		return Decision{Granted: false, Code: PanelLocked, Reason: "panel is locked: " + string(context.PanelId)}
	}
	return Decision{Granted: true}
}

func panelLocked(id panel.Id, locked []panel.Id) bool {
	if id == "" {
		return false
	}
	for _, p := range locked {
		if p == id {
			return true
		}
	}
	return false
}

// CanAll short-circuits on the first denial and returns it; if every
// capability is granted it returns a single granted Decision.
func CanAll(role Role, caps []Capability, context *Context) Decision {
	for _, c := range caps {
		d := Can(role, c, context)
		if !d.Granted {
			return d
		}
	}
	return Decision{Granted: true}
}

// CanAny returns on the first grant; if none are granted it reports the
// last capability's denial.
func CanAny(role Role, caps []Capability, context *Context) Decision {
	var last Decision
	for _, c := range caps {
		d := Can(role, c, context)
		if d.Granted {
			return d
		}
		last = d
	}
	return last
}

// CanModifyPanel is the convenience check every cascade mutation calls
// through: it requires both the editing capability and that the target
// panel is not locked.
func CanModifyPanel(role Role, cap Capability, panelId panel.Id, lockedPanels []panel.Id) Decision {
	return Can(role, cap, &Context{PanelId: panelId, LockedPanels: lockedPanels})
}
