package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chronolab/chronovm/pkg/api/middleware"
	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/panel"
	"github.com/chronolab/chronovm/pkg/governance/rollback"
	"github.com/chronolab/chronovm/pkg/governance/roles"
	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/template"
	"github.com/chronolab/chronovm/pkg/metrics"
)

// GovernanceHandler exposes the governance core (template versioning,
// per-user overrides, audit log, rollback) over HTTP, backed by a
// pkg/governance/store.Store. It performs no business logic of its own:
// every mutation calls straight into the pure pkg/governance/* functions
// and persists the result.
type GovernanceHandler struct {
	store   store.Store
	now     store.Clock
	metrics metrics.GovernanceMetrics
}

// NewGovernanceHandler builds a GovernanceHandler. A nil clock defaults to
// store.SystemClock.
func NewGovernanceHandler(s store.Store, clock store.Clock) *GovernanceHandler {
	if clock == nil {
		clock = store.SystemClock
	}
	return &GovernanceHandler{store: s, now: clock, metrics: metrics.NewGovernanceMetrics()}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		notFound(w, err.Error())
		return
	}
	internalServerError(w, err.Error())
}

// GetLayout handles GET /api/v1/projects/{projectId}/layout: resolves the
// current template against the caller's override (if a deviceId query
// param is given) and returns the cascaded ModeMap.
func (h *GovernanceHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		forbidden(w, "authentication required")
		return
	}

	tmpl, err := h.store.GetCurrentLayout(r.Context(), projectId)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	deviceId := r.URL.Query().Get("deviceId")
	var ov *override.Override
	if deviceId != "" {
		o, err := h.store.GetOverride(r.Context(), projectId, claims.Subject, deviceId)
		if err != nil && !store.IsNotFound(err) {
			writeStoreError(w, err)
			return
		}
		if err == nil {
			ov = &o
		}
	}

	resolved := override.ResolveLayoutWithValidation(&tmpl, ov)
	writeJSON(w, http.StatusOK, okResponse(resolved.PanelModes))
}

type updateTemplateRequest struct {
	ModeChanges  panel.ModeMap `json:"modeChanges"`
	LockedPanels []panel.Id    `json:"lockedPanels"`
}

// UpdateTemplate handles PUT /api/v1/projects/{projectId}/template.
func (h *GovernanceHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		forbidden(w, "authentication required")
		return
	}

	var req updateTemplateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	current, err := h.store.GetCurrentLayout(r.Context(), projectId)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	ts := h.now()
	before := current.PanelModes.Clone()
	result := template.UpdateTemplate(current, claims.Role, claims.Subject, req.ModeChanges, req.LockedPanels, ts)
	if !result.Ok {
		metrics.RecordCapabilityDenial(h.metrics, roles.CapUpdateTemplate)
		forbidden(w, result.Reason)
		return
	}

	if err := h.store.PutLayout(r.Context(), result.Layout); err != nil {
		writeStoreError(w, err)
		return
	}

	delta := audit.ComputeAuditDelta(before, result.Layout.PanelModes)
	entry := audit.CreateAuditEntryFromDelta(uuid.NewString(), projectId, claims.Subject, claims.Role, ts,
		audit.ActionTemplateUpdate, delta, nil, result.Layout.LayoutVersion, result.Layout.PreviousHash)
	if err := h.store.AppendEntry(r.Context(), entry); err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.RecordOperation(h.metrics, audit.ActionTemplateUpdate)
	writeJSON(w, http.StatusOK, okResponse(result.Layout))
}

type setOverrideRequest struct {
	PanelId     panel.Id       `json:"panelId"`
	Mode        panel.ViewMode `json:"mode"`
	DeviceId    string         `json:"deviceId"`
	BaseVersion int            `json:"baseVersion"`
}

// SetOverride handles PUT /api/v1/projects/{projectId}/overrides.
func (h *GovernanceHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		forbidden(w, "authentication required")
		return
	}
	if d := roles.Can(claims.Role, roles.CapEditOwnOverride, nil); !d.Granted {
		metrics.RecordCapabilityDenial(h.metrics, roles.CapEditOwnOverride)
		forbidden(w, d.Reason)
		return
	}

	var req setOverrideRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ts := h.now()
	ov, err := h.store.GetOverride(r.Context(), projectId, claims.Subject, req.DeviceId)
	if err != nil {
		if !store.IsNotFound(err) {
			writeStoreError(w, err)
			return
		}
		ov = override.CreateOverride(claims.Subject, projectId, req.BaseVersion, req.DeviceId, ts)
	}

	tmpl, err := h.store.GetCurrentLayout(r.Context(), projectId)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	result := override.SetOverride(ov, req.PanelId, req.Mode, tmpl, ts)
	if !result.Ok {
		forbidden(w, result.Reason)
		return
	}

	if err := h.store.PutOverride(r.Context(), result.Override); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(result.Override))
}

// ListAudit handles GET /api/v1/projects/{projectId}/audit.
func (h *GovernanceHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		forbidden(w, "authentication required")
		return
	}
	if d := roles.Can(claims.Role, roles.CapViewAuditLog, nil); !d.Granted {
		metrics.RecordCapabilityDenial(h.metrics, roles.CapViewAuditLog)
		forbidden(w, d.Reason)
		return
	}

	entries, err := h.store.ListEntries(r.Context(), projectId)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(entries))
}

type rollbackRequest struct {
	TargetVersion int `json:"targetVersion"`
}

// Rollback handles POST /api/v1/projects/{projectId}/rollback. Rollback is
// non-destructive: it republishes the target version's panel modes at
// current+1 rather than rewinding LayoutVersion, per the governance core's
// PerformRollback contract.
func (h *GovernanceHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		forbidden(w, "authentication required")
		return
	}

	var req rollbackRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	history, err := h.store.GetHistory(r.Context(), projectId)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if len(history) == 0 {
		notFound(w, "no layout history for project")
		return
	}
	current := history[len(history)-1]

	ts := h.now()
	newHash := current.Hash()
	result := rollback.PerformRollback(current, req.TargetVersion, history, claims.Subject, claims.Role, ts, newHash)
	if !result.Ok {
		metrics.RecordCapabilityDenial(h.metrics, roles.CapRollbackTemplate)
		forbidden(w, result.Reason)
		return
	}

	if err := h.store.PutLayout(r.Context(), result.Layout); err != nil {
		writeStoreError(w, err)
		return
	}

	entry := audit.CreateAuditEntry(uuid.NewString(), projectId, claims.Subject, claims.Role, ts,
		audit.ActionRollback, nil, current.PanelModes, result.Layout.PanelModes, nil,
		result.Layout.LayoutVersion, result.Layout.PreviousHash)
	if err := h.store.AppendEntry(r.Context(), entry); err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.RecordOperation(h.metrics, audit.ActionRollback)
	writeJSON(w, http.StatusOK, okResponse(result.Layout))
}
