// Package store defines the persistence boundary for the governance core.
// The pure packages under pkg/governance never touch a database; a Store
// implementation is the thing that loads a Layout/Override/Entry history
// from durable storage, hands it to the pure functions, and persists
// whatever they return. Three backends are provided: memory (tests and
// single-process demos), postgres (GORM, HA-capable), and badger (embedded
// single-node).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// ErrorCode enumerates the stable failure classes a Store implementation
// reports, independent of which backend produced them.
type ErrorCode string

const (
	ErrNotFound      ErrorCode = "not_found"
	ErrAlreadyExists ErrorCode = "already_exists"
	ErrConflict      ErrorCode = "conflict"
	ErrBackend       ErrorCode = "backend"
)

// StoreError is the error type every Store method returns on failure.
type StoreError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StoreError) Unwrap() error { return e.Cause }

func newStoreError(code ErrorCode, message string, cause error) *StoreError {
	return &StoreError{Code: code, Message: message, Cause: cause}
}

// IsNotFound reports whether err is a StoreError carrying ErrNotFound.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrNotFound
}

// TemplateStore persists a project's template history.
//
// History is append-only: PutLayout appends a new version and never
// overwrites an existing one. GetHistory returns versions in ascending
// LayoutVersion order.
type TemplateStore interface {
	GetCurrentLayout(ctx context.Context, projectID string) (template.Layout, error)
	GetHistory(ctx context.Context, projectID string) ([]template.Layout, error)
	PutLayout(ctx context.Context, layout template.Layout) error
}

// OverrideStore persists one override record per (projectID, userID, deviceID).
type OverrideStore interface {
	GetOverride(ctx context.Context, projectID, userID, deviceID string) (override.Override, error)
	ListOverridesForUser(ctx context.Context, projectID, userID string) ([]override.Override, error)
	PutOverride(ctx context.Context, ov override.Override) error
	DeleteOverride(ctx context.Context, projectID, userID, deviceID string) error
}

// AuditStore persists the append-only, hash-chained audit log.
type AuditStore interface {
	AppendEntry(ctx context.Context, entry audit.Entry) error
	ListEntries(ctx context.Context, projectID string) ([]audit.Entry, error)
}

// HealthStore mirrors the lifecycle contract every backend must satisfy.
type HealthStore interface {
	Healthcheck(ctx context.Context) error
	Close() error
}

// Store is the composite persistence interface a governance host depends on.
type Store interface {
	TemplateStore
	OverrideStore
	AuditStore
	HealthStore
}

// Clock abstracts time.Now so backends can be driven deterministically in
// tests without reaching for a real wall clock.
type Clock func() time.Time

// SystemClock is the default Clock, delegating to time.Now.
func SystemClock() time.Time { return time.Now() }
