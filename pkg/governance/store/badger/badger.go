// Package badger implements pkg/governance/store.Store on an embedded
// BadgerDB, for single-node deployments that want durable persistence
// without running a separate Postgres instance. Each record is stored as
// a JSON-encoded value behind a key that sorts naturally for prefix scans
// (project, then zero-padded layout version, user/device, or audit entry
// id); ListEntries orders audit entries by timestamp after the scan.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

const (
	layoutPrefix   = "layout/"
	overridePrefix = "override/"
	auditPrefix    = "audit/"
)

// Store implements store.Store on a BadgerDB handle.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if needed) a BadgerDB database at dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &Store{db: db}, nil
}

func layoutKey(projectID string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", layoutPrefix, projectID, version))
}

func overrideKey(projectID, userID, deviceID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", overridePrefix, projectID, userID, deviceID))
}

func auditKey(projectID string, entryID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", auditPrefix, projectID, entryID))
}

func (s *Store) GetCurrentLayout(_ context.Context, projectID string) (template.Layout, error) {
	history, err := s.GetHistory(context.Background(), projectID)
	if err != nil {
		return template.Layout{}, err
	}
	if len(history) == 0 {
		return template.Layout{}, &store.StoreError{Code: store.ErrNotFound, Message: "no template for project " + projectID}
	}
	return history[len(history)-1], nil
}

func (s *Store) GetHistory(_ context.Context, projectID string) ([]template.Layout, error) {
	var out []template.Layout
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(fmt.Sprintf("%s%s/", layoutPrefix, projectID))
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var l template.Layout
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &l)
			}); err != nil {
				return err
			}
			out = append(out, l)
		}
		return nil
	})
	if err != nil {
		return nil, &store.StoreError{Code: store.ErrBackend, Message: "reading layout history", Cause: err}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LayoutVersion < out[j].LayoutVersion })
	return out, nil
}

func (s *Store) PutLayout(_ context.Context, layout template.Layout) error {
	key := layoutKey(layout.ProjectId, layout.LayoutVersion)
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return badgerdb.ErrConflict
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		val, err := json.Marshal(layout)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err == badgerdb.ErrConflict {
		return &store.StoreError{Code: store.ErrAlreadyExists, Message: "layout version already exists"}
	}
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "writing layout", Cause: err}
	}
	return nil
}

func (s *Store) GetOverride(_ context.Context, projectID, userID, deviceID string) (override.Override, error) {
	var ov override.Override
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(overrideKey(projectID, userID, deviceID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ov)
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return override.Override{}, &store.StoreError{Code: store.ErrNotFound, Message: "no override for device " + deviceID}
	}
	if err != nil {
		return override.Override{}, &store.StoreError{Code: store.ErrBackend, Message: "reading override", Cause: err}
	}
	return ov, nil
}

func (s *Store) ListOverridesForUser(_ context.Context, projectID, userID string) ([]override.Override, error) {
	var out []override.Override
	prefix := []byte(fmt.Sprintf("%s%s/%s/", overridePrefix, projectID, userID))
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ov override.Override
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ov)
			}); err != nil {
				return err
			}
			out = append(out, ov)
		}
		return nil
	})
	if err != nil {
		return nil, &store.StoreError{Code: store.ErrBackend, Message: "reading overrides", Cause: err}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceId < out[j].DeviceId })
	return out, nil
}

func (s *Store) PutOverride(_ context.Context, ov override.Override) error {
	val, err := json.Marshal(ov)
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "encoding override", Cause: err}
	}
	key := overrideKey(ov.ProjectId, ov.UserId, ov.DeviceId)
	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, val)
	}); err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "writing override", Cause: err}
	}
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, projectID, userID, deviceID string) error {
	key := overrideKey(projectID, userID, deviceID)
	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "deleting override", Cause: err}
	}
	return nil
}

func (s *Store) AppendEntry(_ context.Context, entry audit.Entry) error {
	key := auditKey(entry.ProjectId, entry.EntryId)
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return badgerdb.ErrConflict
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		val, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err == badgerdb.ErrConflict {
		return &store.StoreError{Code: store.ErrAlreadyExists, Message: "duplicate audit entryId"}
	}
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "writing audit entry", Cause: err}
	}
	return nil
}

func (s *Store) ListEntries(_ context.Context, projectID string) ([]audit.Entry, error) {
	var out []audit.Entry
	prefix := []byte(fmt.Sprintf("%s%s/", auditPrefix, projectID))
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e audit.Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, &store.StoreError{Code: store.ErrBackend, Message: "reading audit log", Cause: err}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) Healthcheck(_ context.Context) error {
	return s.db.View(func(txn *badgerdb.Txn) error { return nil })
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
