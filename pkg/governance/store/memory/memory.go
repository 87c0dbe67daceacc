// Package memory implements pkg/governance/store.Store over in-process
// maps guarded by a mutex. It backs the governance core's unit tests and
// is also a legitimate single-process deployment target for small,
// ephemeral installs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

type overrideKey struct {
	projectID string
	userID    string
	deviceID  string
}

// Store is an in-memory implementation of store.Store. The zero value is
// not usable; construct with New.
type Store struct {
	mu sync.RWMutex

	// history holds every published version for a project, in the order
	// PutLayout was called. Index is not assumed to equal LayoutVersion-1
	// by callers outside this package, but in practice always is.
	history map[string][]template.Layout

	overrides map[overrideKey]override.Override

	audit map[string][]audit.Entry

	closed bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		history:   make(map[string][]template.Layout),
		overrides: make(map[overrideKey]override.Override),
		audit:     make(map[string][]audit.Entry),
	}
}

func (s *Store) GetCurrentLayout(_ context.Context, projectID string) (template.Layout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[projectID]
	if len(h) == 0 {
		return template.Layout{}, &store.StoreError{Code: store.ErrNotFound, Message: "no template for project " + projectID}
	}
	return h[len(h)-1].Clone(), nil
}

func (s *Store) GetHistory(_ context.Context, projectID string) ([]template.Layout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[projectID]
	out := make([]template.Layout, len(h))
	for i, l := range h {
		out[i] = l.Clone()
	}
	return out, nil
}

func (s *Store) PutLayout(_ context.Context, layout template.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[layout.ProjectId]
	for _, existing := range h {
		if existing.LayoutVersion == layout.LayoutVersion {
			return &store.StoreError{Code: store.ErrAlreadyExists, Message: "layout version already exists"}
		}
	}
	s.history[layout.ProjectId] = append(h, layout.Clone())
	return nil
}

func (s *Store) GetOverride(_ context.Context, projectID, userID, deviceID string) (override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov, ok := s.overrides[overrideKey{projectID, userID, deviceID}]
	if !ok {
		return override.Override{}, &store.StoreError{Code: store.ErrNotFound, Message: "no override for device " + deviceID}
	}
	return ov.Clone(), nil
}

func (s *Store) ListOverridesForUser(_ context.Context, projectID, userID string) ([]override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []override.Override
	for k, ov := range s.overrides {
		if k.projectID == projectID && k.userID == userID {
			out = append(out, ov.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceId < out[j].DeviceId })
	return out, nil
}

func (s *Store) PutOverride(_ context.Context, ov override.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides[overrideKey{ov.ProjectId, ov.UserId, ov.DeviceId}] = ov.Clone()
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, projectID, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.overrides, overrideKey{projectID, userID, deviceID})
	return nil
}

func (s *Store) AppendEntry(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.audit[entry.ProjectId]
	for _, existing := range log {
		if existing.EntryId == entry.EntryId {
			return &store.StoreError{Code: store.ErrAlreadyExists, Message: "duplicate audit entryId " + entry.EntryId}
		}
	}
	s.audit[entry.ProjectId] = append(log, entry)
	return nil
}

func (s *Store) ListEntries(_ context.Context, projectID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.audit[projectID]
	out := make([]audit.Entry, len(log))
	copy(out, log)
	return out, nil
}

func (s *Store) Healthcheck(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &store.StoreError{Code: store.ErrBackend, Message: "store is closed"}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ store.Store = (*Store)(nil)
