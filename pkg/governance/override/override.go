// Package override implements per-user layout overrides and the three-layer
// cascade resolution (default -> template -> override, with locks always
// final) that turns a template and an override into the PanelModeMap a UI
// actually renders.
package override

import (
	"time"

	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// Override is a single user's per-device layout deviation from the
// project's published template.
type Override struct {
	UserId      string
	ProjectId   string
	BaseVersion int
	Overrides   panel.ModeMap
	LastSyncedAt time.Time
	DeviceId    string
}

// Clone returns a deep, independent copy of o.
func (o Override) Clone() Override {
	next := o
	next.Overrides = o.Overrides.Clone()
	return next
}

// CreateOverride returns a fresh override with no panel deviations, pinned
// to baseVersion.
func CreateOverride(userId, projectId string, baseVersion int, deviceId string, ts time.Time) Override {
	return Override{
		UserId:       userId,
		ProjectId:    projectId,
		BaseVersion:  baseVersion,
		Overrides:    panel.ModeMap{},
		LastSyncedAt: ts,
		DeviceId:     deviceId,
	}
}

// Result is the outcome of a cascade-aware override mutation.
type Result struct {
	Ok      bool
	Override Override
	Reason  string
}

// SetOverride denies setting panelId when the template has locked it;
// otherwise it returns a new override with the binding set.
func SetOverride(o Override, panelId panel.Id, mode panel.ViewMode, tmpl template.Layout, ts time.Time) Result {
	if !panel.IsValidId(panelId) || !panel.IsValidViewMode(mode) {
		return Result{Ok: false, Reason: "invalid panel id or view mode"}
	}
	if isLocked(panelId, tmpl.LockedPanels) {
		return Result{Ok: false, Reason: "panel is locked by the template: " + string(panelId)}
	}
	next := o.Clone()
	next.Overrides[panelId] = mode
	next.LastSyncedAt = ts
	return Result{Ok: true, Override: next}
}

// ClearOverride removes a single panel's override, if present.
func ClearOverride(o Override, panelId panel.Id, ts time.Time) Override {
	next := o.Clone()
	delete(next.Overrides, panelId)
	next.LastSyncedAt = ts
	return next
}

// ClearAllOverrides removes every panel deviation.
func ClearAllOverrides(o Override, ts time.Time) Override {
	next := o.Clone()
	next.Overrides = panel.ModeMap{}
	next.LastSyncedAt = ts
	return next
}

func isLocked(id panel.Id, locked []panel.Id) bool {
	for _, p := range locked {
		if p == id {
			return true
		}
	}
	return false
}

// ResolveLayout folds default -> template -> override into the full
// seven-key PanelModeMap a UI renders, honouring lock supremacy: a locked
// panel's template value is final regardless of any override entry.
func ResolveLayout(tmpl *template.Layout, ov *Override) panel.ModeMap {
	resolved := panel.DefaultModes.Clone()
	for _, id := range panel.CanonicalOrder {
		if tmpl != nil {
			if mode, ok := tmpl.PanelModes[id]; ok && panel.IsValidViewMode(mode) {
				resolved[id] = mode
			}
			if isLocked(id, tmpl.LockedPanels) {
				continue
			}
		}
		if ov != nil {
			if mode, ok := ov.Overrides[id]; ok && panel.IsValidViewMode(mode) {
				resolved[id] = mode
			}
		}
	}
	return resolved
}

// Warning describes one override entry discarded during resolution.
type Warning struct {
	PanelId panel.Id
	Reason  string
}

// ResolvedLayout is ResolveLayout's output plus a validation report.
type ResolvedLayout struct {
	PanelModes              panel.ModeMap
	Warnings                []Warning
	DroppedOverridePanelIds []panel.Id
}

// ResolveLayoutWithValidation behaves like ResolveLayout but additionally
// reports unknown PanelIds and invalid ViewModes silently discarded during
// resolution, plus override entries silenced purely by a lock (which remain
// present in the override record and are purely informational here).
func ResolveLayoutWithValidation(tmpl *template.Layout, ov *Override) ResolvedLayout {
	resolved := panel.DefaultModes.Clone()
	var warnings []Warning
	var dropped []panel.Id

	if ov != nil {
		for id, mode := range ov.Overrides {
			if !panel.IsValidId(id) {
				warnings = append(warnings, Warning{PanelId: id, Reason: "unknown panel id"})
				continue
			}
			if !panel.IsValidViewMode(mode) {
				warnings = append(warnings, Warning{PanelId: id, Reason: "invalid view mode"})
			}
		}
	}

	for _, id := range panel.CanonicalOrder {
		if tmpl != nil {
			if mode, ok := tmpl.PanelModes[id]; ok && panel.IsValidViewMode(mode) {
				resolved[id] = mode
			}
			if isLocked(id, tmpl.LockedPanels) {
				if ov != nil {
					if _, overridden := ov.Overrides[id]; overridden {
						dropped = append(dropped, id)
					}
				}
				continue
			}
		}
		if ov != nil {
			if mode, ok := ov.Overrides[id]; ok && panel.IsValidViewMode(mode) {
				resolved[id] = mode
			}
		}
	}

	return ResolvedLayout{PanelModes: resolved, Warnings: warnings, DroppedOverridePanelIds: dropped}
}
