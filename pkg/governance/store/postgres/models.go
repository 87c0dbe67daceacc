package postgres

import (
	"encoding/json"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/roles"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// layoutRow is the GORM row for a single published template version.
// PanelModes and LockedPanels are stored as JSON text columns: the panel
// set is small and fixed, and round-tripping through JSON keeps this
// adapter portable across SQLite (used in unit tests) and PostgreSQL
// without a join table.
type layoutRow struct {
	ProjectID     string `gorm:"primaryKey;column:project_id"`
	LayoutVersion int    `gorm:"primaryKey;column:layout_version"`
	PanelModesRaw string `gorm:"column:panel_modes;type:text"`
	LockedRaw     string `gorm:"column:locked_panels;type:text"`
	UpdatedBy     string `gorm:"column:updated_by"`
	UpdatedAt     time.Time
	PreviousHash  string `gorm:"column:previous_hash"`
}

func (layoutRow) TableName() string { return "governance_layouts" }

func toLayoutRow(l template.Layout) (layoutRow, error) {
	modes, err := json.Marshal(l.PanelModes)
	if err != nil {
		return layoutRow{}, err
	}
	locked, err := json.Marshal(l.LockedPanels)
	if err != nil {
		return layoutRow{}, err
	}
	return layoutRow{
		ProjectID:     l.ProjectId,
		LayoutVersion: l.LayoutVersion,
		PanelModesRaw: string(modes),
		LockedRaw:     string(locked),
		UpdatedBy:     l.UpdatedBy,
		UpdatedAt:     l.UpdatedAt,
		PreviousHash:  l.PreviousHash,
	}, nil
}

func (r layoutRow) toLayout() (template.Layout, error) {
	var modes panel.ModeMap
	if err := json.Unmarshal([]byte(r.PanelModesRaw), &modes); err != nil {
		return template.Layout{}, err
	}
	var locked []panel.Id
	if err := json.Unmarshal([]byte(r.LockedRaw), &locked); err != nil {
		return template.Layout{}, err
	}
	return template.Layout{
		ProjectId:     r.ProjectID,
		LayoutVersion: r.LayoutVersion,
		PanelModes:    modes,
		LockedPanels:  locked,
		UpdatedBy:     r.UpdatedBy,
		UpdatedAt:     r.UpdatedAt,
		PreviousHash:  r.PreviousHash,
	}, nil
}

// overrideRow is the GORM row for a single device's override set.
type overrideRow struct {
	ProjectID     string `gorm:"primaryKey;column:project_id"`
	UserID        string `gorm:"primaryKey;column:user_id"`
	DeviceID      string `gorm:"primaryKey;column:device_id"`
	BaseVersion   int    `gorm:"column:base_version"`
	OverridesRaw  string `gorm:"column:overrides;type:text"`
	LastSyncedAt  time.Time
}

func (overrideRow) TableName() string { return "governance_overrides" }

func toOverrideRow(ov override.Override) (overrideRow, error) {
	raw, err := json.Marshal(ov.Overrides)
	if err != nil {
		return overrideRow{}, err
	}
	return overrideRow{
		ProjectID:    ov.ProjectId,
		UserID:       ov.UserId,
		DeviceID:     ov.DeviceId,
		BaseVersion:  ov.BaseVersion,
		OverridesRaw: string(raw),
		LastSyncedAt: ov.LastSyncedAt,
	}, nil
}

func (r overrideRow) toOverride() (override.Override, error) {
	var modes panel.ModeMap
	if err := json.Unmarshal([]byte(r.OverridesRaw), &modes); err != nil {
		return override.Override{}, err
	}
	return override.Override{
		ProjectId:    r.ProjectID,
		UserId:       r.UserID,
		DeviceId:     r.DeviceID,
		BaseVersion:  r.BaseVersion,
		Overrides:    modes,
		LastSyncedAt: r.LastSyncedAt,
	}, nil
}

// auditRow is the GORM row for a single append-only audit entry.
type auditRow struct {
	EntryID       string `gorm:"primaryKey;column:entry_id"`
	ProjectID     string `gorm:"column:project_id;index"`
	UserID        string `gorm:"column:user_id"`
	Role          string `gorm:"column:role"`
	Timestamp     time.Time
	Action        string `gorm:"column:action"`
	ChangedKeys   string `gorm:"column:changed_keys;type:text"`
	BeforeRaw     string `gorm:"column:before_state;type:text"`
	AfterRaw      string `gorm:"column:after_state;type:text"`
	MetadataRaw   string `gorm:"column:metadata;type:text"`
	LayoutVersion int    `gorm:"column:layout_version"`
	PreviousHash  string `gorm:"column:previous_hash"`
}

func (auditRow) TableName() string { return "governance_audit_entries" }

func toAuditRow(e audit.Entry) (auditRow, error) {
	changed, err := json.Marshal(e.ChangedKeys)
	if err != nil {
		return auditRow{}, err
	}
	before, err := json.Marshal(e.Before)
	if err != nil {
		return auditRow{}, err
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return auditRow{}, err
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return auditRow{}, err
	}
	return auditRow{
		EntryID:       e.EntryId,
		ProjectID:     e.ProjectId,
		UserID:        e.UserId,
		Role:          string(e.Role),
		Timestamp:     e.Timestamp,
		Action:        string(e.Action),
		ChangedKeys:   string(changed),
		BeforeRaw:     string(before),
		AfterRaw:      string(after),
		MetadataRaw:   string(meta),
		LayoutVersion: e.LayoutVersion,
		PreviousHash:  e.PreviousHash,
	}, nil
}

func (r auditRow) toEntry() (audit.Entry, error) {
	var changed []panel.Id
	if err := json.Unmarshal([]byte(r.ChangedKeys), &changed); err != nil {
		return audit.Entry{}, err
	}
	var before, after panel.ModeMap
	if err := json.Unmarshal([]byte(r.BeforeRaw), &before); err != nil {
		return audit.Entry{}, err
	}
	if err := json.Unmarshal([]byte(r.AfterRaw), &after); err != nil {
		return audit.Entry{}, err
	}
	var meta map[string]string
	if r.MetadataRaw != "" {
		if err := json.Unmarshal([]byte(r.MetadataRaw), &meta); err != nil {
			return audit.Entry{}, err
		}
	}
	return audit.Entry{
		EntryId:       r.EntryID,
		ProjectId:     r.ProjectID,
		UserId:        r.UserID,
		Role:          roles.Role(r.Role),
		Timestamp:     r.Timestamp,
		Action:        audit.Action(r.Action),
		ChangedKeys:   changed,
		Before:        before,
		After:         after,
		Metadata:      meta,
		LayoutVersion: r.LayoutVersion,
		PreviousHash:  r.PreviousHash,
	}, nil
}

// allModels lists every row type AutoMigrate must create.
func allModels() []interface{} {
	return []interface{}{&layoutRow{}, &overrideRow{}, &auditRow{}}
}
