// Package template implements the monotonically versioned project layout
// template: creation, update, reset, draft publication and the primitive
// rollback reconstructs on top of, plus the integrity checks a persistence
// layer runs before trusting a stored history.
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/roles"
)

// Layout is a single versioned snapshot of a project's panel layout.
type Layout struct {
	ProjectId     string
	LayoutVersion int
	PanelModes    panel.ModeMap
	LockedPanels  []panel.Id
	UpdatedBy     string
	UpdatedAt     time.Time
	PreviousHash  string
}

// Clone returns a deep, independent copy of l.
func (l Layout) Clone() Layout {
	next := l
	next.PanelModes = l.PanelModes.Clone()
	next.LockedPanels = append([]panel.Id{}, l.LockedPanels...)
	return next
}

// Result is the outcome of a template mutation: either the new layout, or a
// reason the mutation was refused.
type Result struct {
	Ok     bool
	Layout Layout
	Reason string
}

// Hash computes a deterministic content hash of l, excluding PreviousHash
// itself, suitable for chaining into the next layout's PreviousHash.
func (l Layout) Hash() string {
	keys := make([]string, 0, len(l.PanelModes))
	for k := range l.PanelModes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	modes := make(map[string]string, len(keys))
	for _, k := range keys {
		modes[k] = string(l.PanelModes[panel.Id(k)])
	}
	locked := make([]string, len(l.LockedPanels))
	for i, p := range l.LockedPanels {
		locked[i] = string(p)
	}
	sort.Strings(locked)

	payload, _ := json.Marshal(struct {
		ProjectId     string            `json:"projectId"`
		LayoutVersion int               `json:"layoutVersion"`
		PanelModes    map[string]string `json:"panelModes"`
		LockedPanels  []string          `json:"lockedPanels"`
		UpdatedBy     string            `json:"updatedBy"`
		UpdatedAt     string            `json:"updatedAt"`
	}{l.ProjectId, l.LayoutVersion, modes, locked, l.UpdatedBy, l.UpdatedAt.UTC().Format(time.RFC3339Nano)})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CreateTemplate returns v1 of a project's template: all-default panel
// modes, an empty lock set.
func CreateTemplate(projectId, userId string, ts time.Time) Layout {
	l := Layout{
		ProjectId:     projectId,
		LayoutVersion: 1,
		PanelModes:    panel.DefaultModes.Clone(),
		LockedPanels:  nil,
		UpdatedBy:     userId,
		UpdatedAt:     ts,
	}
	l.PreviousHash = l.Hash()
	return l
}

func validLockSet(locked []panel.Id) bool {
	for _, p := range locked {
		if !panel.IsValidId(p) {
			return false
		}
	}
	return true
}

func advance(current Layout, userId string, ts time.Time, mutate func(*Layout)) Result {
	next := current.Clone()
	mutate(&next)
	next.LayoutVersion = current.LayoutVersion + 1
	next.UpdatedBy = userId
	next.UpdatedAt = ts
	next.PreviousHash = current.Hash()
	return Result{Ok: true, Layout: next}
}

// UpdateTemplate requires update_template and applies partial panel-mode and
// lock-set changes, validating every changed mode and every locked panel id.
func UpdateTemplate(current Layout, role roles.Role, userId string, modeChanges panel.ModeMap, lockedPanels []panel.Id, ts time.Time) Result {
	if d := roles.Can(role, roles.CapUpdateTemplate, nil); !d.Granted {
		return Result{Ok: false, Reason: d.Reason}
	}
	for id, mode := range modeChanges {
		if !panel.IsValidId(id) || !panel.IsValidViewMode(mode) {
			return Result{Ok: false, Reason: fmt.Sprintf("invalid panel mode change %s=%s", id, mode)}
		}
	}
	if lockedPanels != nil && !validLockSet(lockedPanels) {
		return Result{Ok: false, Reason: "invalid locked panel set"}
	}

	return advance(current, userId, ts, func(next *Layout) {
		for id, mode := range modeChanges {
			next.PanelModes[id] = mode
		}
		if lockedPanels != nil {
			next.LockedPanels = append([]panel.Id{}, lockedPanels...)
		}
	})
}

// ResetTemplate requires reset_template and restores every panel to its
// default mode and clears the lock set.
func ResetTemplate(current Layout, role roles.Role, userId string, ts time.Time) Result {
	if d := roles.Can(role, roles.CapResetTemplate, nil); !d.Granted {
		return Result{Ok: false, Reason: d.Reason}
	}
	return advance(current, userId, ts, func(next *Layout) {
		next.PanelModes = panel.DefaultModes.Clone()
		next.LockedPanels = nil
	})
}

// PublishDraft requires publish_draft and commits a fully-formed draft
// panel mode map plus lock set as the new version.
func PublishDraft(current Layout, role roles.Role, userId string, draftModes panel.ModeMap, lockedPanels []panel.Id, ts time.Time) Result {
	if d := roles.Can(role, roles.CapPublishDraft, nil); !d.Granted {
		return Result{Ok: false, Reason: d.Reason}
	}
	for _, id := range panel.CanonicalOrder {
		mode, ok := draftModes[id]
		if !ok || !panel.IsValidViewMode(mode) {
			return Result{Ok: false, Reason: fmt.Sprintf("draft is missing a valid mode for panel %s", id)}
		}
	}
	if !validLockSet(lockedPanels) {
		return Result{Ok: false, Reason: "invalid locked panel set"}
	}

	return advance(current, userId, ts, func(next *Layout) {
		next.PanelModes = draftModes.Clone()
		next.LockedPanels = append([]panel.Id{}, lockedPanels...)
	})
}

// RollbackTemplate is the primitive version bump used by pkg/governance/rollback:
// it requires reset_template (rollback reuses the reset capability) and
// republishes reconstructed as the new current+1 version.
func RollbackTemplate(current Layout, reconstructed Layout, role roles.Role, userId string, ts time.Time) Result {
	if d := roles.Can(role, roles.CapResetTemplate, nil); !d.Granted {
		return Result{Ok: false, Reason: d.Reason}
	}
	return advance(current, userId, ts, func(next *Layout) {
		next.PanelModes = reconstructed.PanelModes.Clone()
		next.LockedPanels = append([]panel.Id{}, reconstructed.LockedPanels...)
	})
}

// VersionComparison classifies a client-supplied version against a server's
// current layout version.
type VersionComparison string

const (
	VersionStale   VersionComparison = "stale"
	VersionCurrent VersionComparison = "current"
	VersionInvalid VersionComparison = "invalid"
)

// ValidateVersionForUpdate rejects a client version older than current as
// stale and one newer as invalid; only an exact match passes.
func ValidateVersionForUpdate(clientVersion int, current Layout) VersionComparison {
	switch {
	case clientVersion < current.LayoutVersion:
		return VersionStale
	case clientVersion > current.LayoutVersion:
		return VersionInvalid
	default:
		return VersionCurrent
	}
}

// IntegrityError describes why a template history failed verification.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string { return e.Reason }

// VerifyVersionIntegrity checks that history's versions form the sequence
// 1,2,3,…, contain no duplicates, that UpdatedAt is non-decreasing, and that
// every entry shares the same ProjectId.
func VerifyVersionIntegrity(history []Layout) error {
	if len(history) == 0 {
		return &IntegrityError{"empty history"}
	}
	projectId := history[0].ProjectId
	var lastTime time.Time
	for i, l := range history {
		if l.ProjectId != projectId {
			return &IntegrityError{fmt.Sprintf("entry %d has projectId %q, want %q", i, l.ProjectId, projectId)}
		}
		if l.LayoutVersion != i+1 {
			return &IntegrityError{fmt.Sprintf("entry %d has layoutVersion %d, want %d", i, l.LayoutVersion, i+1)}
		}
		if i > 0 && l.UpdatedAt.Before(lastTime) {
			return &IntegrityError{fmt.Sprintf("entry %d has updatedAt before the previous entry", i)}
		}
		lastTime = l.UpdatedAt
	}
	return nil
}
