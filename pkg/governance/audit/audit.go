// Package audit implements the append-only, hash-chained log of layout
// governance actions: a closed eight-action taxonomy, delta computation
// between two PanelModeMaps, entry construction, and the integrity checks a
// store runs before trusting a persisted log.
package audit

import (
	"fmt"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/roles"
)

// Action is one of the eight closed governance action types.
type Action string

const (
	ActionTemplateCreate Action = "template_create"
	ActionTemplateUpdate Action = "template_update"
	ActionTemplateReset  Action = "template_reset"
	ActionDraftPublish   Action = "draft_publish"
	ActionRoleChange     Action = "role_change"
	ActionPanelLock      Action = "panel_lock"
	ActionForceSync      Action = "force_sync"
	ActionRollback       Action = "rollback"
)

// AllAuditActions is the closed set of exactly 8 recognised actions.
var AllAuditActions = []Action{
	ActionTemplateCreate, ActionTemplateUpdate, ActionTemplateReset, ActionDraftPublish,
	ActionRoleChange, ActionPanelLock, ActionForceSync, ActionRollback,
}

// VersionIncrementTriggers is the subset of actions that bump layoutVersion.
var VersionIncrementTriggers = map[Action]bool{
	ActionTemplateCreate: true,
	ActionTemplateUpdate: true,
	ActionTemplateReset:  true,
	ActionDraftPublish:   true,
	ActionRollback:       true,
	ActionPanelLock:      true,
}

// VersionNoIncrementActions is the subset that must never bump layoutVersion.
var VersionNoIncrementActions = map[Action]bool{
	ActionRoleChange: true,
	ActionForceSync:  true,
}

// IsValidAction reports whether a is one of the 8 recognised actions.
func IsValidAction(a Action) bool {
	for _, known := range AllAuditActions {
		if known == a {
			return true
		}
	}
	return false
}

// Delta is the panel-level diff between two PanelModeMaps, restricted to
// the panels that actually changed, in canonical order.
type Delta struct {
	ChangedKeys []panel.Id
	Before      panel.ModeMap
	After       panel.ModeMap
}

// ComputeAuditDelta iterates panels in canonical order and records only
// those whose values differ between before and after.
func ComputeAuditDelta(before, after panel.ModeMap) Delta {
	d := Delta{Before: panel.ModeMap{}, After: panel.ModeMap{}}
	for _, id := range panel.CanonicalOrder {
		b, aOk := before[id]
		a, bOk := after[id]
		if b == a && aOk == bOk {
			continue
		}
		d.ChangedKeys = append(d.ChangedKeys, id)
		if aOk {
			d.Before[id] = b
		}
		if bOk {
			d.After[id] = a
		}
	}
	return d
}

// Entry is a single immutable audit log record.
type Entry struct {
	EntryId       string
	ProjectId     string
	UserId        string
	Role          roles.Role
	Timestamp     time.Time
	Action        Action
	ChangedKeys   []panel.Id
	Before        panel.ModeMap
	After         panel.ModeMap
	Metadata      map[string]string
	LayoutVersion int
	PreviousHash  string
}

// CreateAuditEntry returns a fully-formed immutable entry.
func CreateAuditEntry(entryId, projectId, userId string, role roles.Role, ts time.Time, action Action,
	changedKeys []panel.Id, before, after panel.ModeMap, metadata map[string]string, layoutVersion int, previousHash string) Entry {
	return Entry{
		EntryId:       entryId,
		ProjectId:     projectId,
		UserId:        userId,
		Role:          role,
		Timestamp:     ts,
		Action:        action,
		ChangedKeys:   append([]panel.Id{}, changedKeys...),
		Before:        before.Clone(),
		After:         after.Clone(),
		Metadata:      cloneMeta(metadata),
		LayoutVersion: layoutVersion,
		PreviousHash:  previousHash,
	}
}

// CreateAuditEntryFromDelta composes ComputeAuditDelta's output with
// CreateAuditEntry's remaining fields.
func CreateAuditEntryFromDelta(entryId, projectId, userId string, role roles.Role, ts time.Time, action Action,
	delta Delta, metadata map[string]string, layoutVersion int, previousHash string) Entry {
	return CreateAuditEntry(entryId, projectId, userId, role, ts, action, delta.ChangedKeys, delta.Before, delta.After, metadata, layoutVersion, previousHash)
}

func cloneMeta(m map[string]string) map[string]string {
	next := make(map[string]string, len(m))
	for k, v := range m {
		next[k] = v
	}
	return next
}

// ValidationError describes why an entry or a log failed validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ValidateAuditEntry checks that an entry's action and role are known and
// that every id in ChangedKeys is a known panel. It does not compare an
// entry's LayoutVersion with any other entry's.
func ValidateAuditEntry(e Entry) error {
	if !IsValidAction(e.Action) {
		return &ValidationError{fmt.Sprintf("unknown action %q", e.Action)}
	}
	if !roles.IsValidRole(e.Role) {
		return &ValidationError{fmt.Sprintf("unknown role %q", e.Role)}
	}
	for _, id := range e.ChangedKeys {
		if !panel.IsValidId(id) {
			return &ValidationError{fmt.Sprintf("unknown panel id %q in changedKeys", id)}
		}
	}
	return nil
}

// VerifyLogIntegrity checks that every entryId in log is unique, timestamps
// are non-decreasing, and every entry shares one projectId.
func VerifyLogIntegrity(log []Entry) error {
	if len(log) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(log))
	projectId := log[0].ProjectId
	var lastTime time.Time
	for i, e := range log {
		if err := ValidateAuditEntry(e); err != nil {
			return err
		}
		if seen[e.EntryId] {
			return &ValidationError{fmt.Sprintf("duplicate entryId %q at index %d", e.EntryId, i)}
		}
		seen[e.EntryId] = true
		if e.ProjectId != projectId {
			return &ValidationError{fmt.Sprintf("entry %d has projectId %q, want %q", i, e.ProjectId, projectId)}
		}
		if i > 0 && e.Timestamp.Before(lastTime) {
			return &ValidationError{fmt.Sprintf("entry %d timestamp precedes entry %d", i, i-1)}
		}
		lastTime = e.Timestamp
	}
	return nil
}
