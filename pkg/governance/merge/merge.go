// Package merge reconciles a user's layout override against a project
// template that has moved on: version-aware rebase that drops overrides a
// new template no longer permits, and last-writer-wins conflict resolution
// across a user's own devices, with lock supremacy applied after either.
package merge

import (
	"time"

	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// SyncState classifies an override's BaseVersion against a template's
// current LayoutVersion.
type SyncState string

const (
	StateCurrent SyncState = "current"
	StateStale   SyncState = "stale"
	StateAhead   SyncState = "ahead"
)

// CompareVersions reports whether ov is on the template's current version,
// behind it, or (should never legitimately happen, but is representable)
// ahead of it.
func CompareVersions(ov override.Override, tmpl template.Layout) SyncState {
	switch {
	case ov.BaseVersion == tmpl.LayoutVersion:
		return StateCurrent
	case ov.BaseVersion < tmpl.LayoutVersion:
		return StateStale
	default:
		return StateAhead
	}
}

// CompareSyncState is an alias for CompareVersions exposed under the name
// used by host callers that think in terms of "is this client in sync".
func CompareSyncState(ov override.Override, tmpl template.Layout) SyncState {
	return CompareVersions(ov, tmpl)
}

// RebaseResult is the outcome of rebasing a single override against a
// (possibly newer) template.
type RebaseResult struct {
	Override          override.Override
	Rebased           bool
	DroppedPanels     []panel.Id
	VersionComparison SyncState
}

// RebaseOverrides drops any override entry the new template no longer
// permits — an unknown panel id, an invalid mode, or a panel now locked —
// and repins BaseVersion to the new template's version. Rebased is true
// whenever the version changed or any panel was dropped.
func RebaseOverrides(ov override.Override, newTemplate template.Layout, ts time.Time) RebaseResult {
	comparison := CompareVersions(ov, newTemplate)

	next := ov.Clone()
	var dropped []panel.Id
	for id, mode := range ov.Overrides {
		if !panel.IsValidId(id) || !panel.IsValidViewMode(mode) || isLocked(id, newTemplate.LockedPanels) {
			delete(next.Overrides, id)
			dropped = append(dropped, id)
		}
	}

	versionChanged := next.BaseVersion != newTemplate.LayoutVersion
	next.BaseVersion = newTemplate.LayoutVersion
	if versionChanged || len(dropped) > 0 {
		next.LastSyncedAt = ts
	}

	return RebaseResult{
		Override:          next,
		Rebased:           versionChanged || len(dropped) > 0,
		DroppedPanels:     dropped,
		VersionComparison: comparison,
	}
}

func isLocked(id panel.Id, locked []panel.Id) bool {
	for _, p := range locked {
		if p == id {
			return true
		}
	}
	return false
}

// MergeOverrides combines two overrides per panel, last-writer-wins, where
// primary's entries take precedence over secondary's for any panel both
// define.
func MergeOverrides(primary, secondary override.Override, ts time.Time) override.Override {
	merged := primary.Clone()
	for id, mode := range secondary.Overrides {
		if _, ok := merged.Overrides[id]; !ok {
			merged.Overrides[id] = mode
		}
	}
	if primary.BaseVersion > secondary.BaseVersion {
		merged.BaseVersion = primary.BaseVersion
	} else {
		merged.BaseVersion = secondary.BaseVersion
	}
	merged.LastSyncedAt = ts
	return merged
}

// RebaseAndResolveConflict implements multi-device last-writer-wins with
// lock supremacy: the override with the later LastSyncedAt wins ties going
// to local, then the unified result is rebased against tmpl so locks always
// override whatever LWW produced.
func RebaseAndResolveConflict(local, remote override.Override, tmpl template.Layout, ts time.Time) RebaseResult {
	primary, secondary := local, remote
	if remote.LastSyncedAt.After(local.LastSyncedAt) {
		primary, secondary = remote, local
	}

	unified := MergeOverrides(primary, secondary, ts)
	if local.BaseVersion > unified.BaseVersion {
		unified.BaseVersion = local.BaseVersion
	}
	if remote.BaseVersion > unified.BaseVersion {
		unified.BaseVersion = remote.BaseVersion
	}

	return RebaseOverrides(unified, tmpl, ts)
}
