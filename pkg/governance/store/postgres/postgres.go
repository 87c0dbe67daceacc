// Package postgres implements pkg/governance/store.Store on top of GORM,
// supporting PostgreSQL in production and an in-process SQLite dialect for
// fast unit tests of the row mapping, mirroring the teacher's
// controlplane store setup.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chronolab/chronovm/pkg/governance/audit"
	"github.com/chronolab/chronovm/pkg/governance/override"
	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// Config configures the Postgres-backed store.
type Config struct {
	// DSN is the libpq-style connection string. If empty, Open uses an
	// in-process SQLite database instead — useful for tests that want
	// the GORM mapping exercised without a real Postgres instance.
	DSN string
}

// Store implements store.Store on a GORM database handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured backend and runs AutoMigrate.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	if cfg.DSN == "" {
		dialector = sqlite.Open(":memory:")
	} else {
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to governance store: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrating governance store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetCurrentLayout(ctx context.Context, projectID string) (template.Layout, error) {
	var row layoutRow
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("layout_version desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return template.Layout{}, &store.StoreError{Code: store.ErrNotFound, Message: "no template for project " + projectID}
	}
	if err != nil {
		return template.Layout{}, &store.StoreError{Code: store.ErrBackend, Message: "querying current layout", Cause: err}
	}
	return row.toLayout()
}

func (s *Store) GetHistory(ctx context.Context, projectID string) ([]template.Layout, error) {
	var rows []layoutRow
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("layout_version asc").
		Find(&rows).Error; err != nil {
		return nil, &store.StoreError{Code: store.ErrBackend, Message: "querying layout history", Cause: err}
	}
	out := make([]template.Layout, len(rows))
	for i, r := range rows {
		l, err := r.toLayout()
		if err != nil {
			return nil, &store.StoreError{Code: store.ErrBackend, Message: "decoding layout row", Cause: err}
		}
		out[i] = l
	}
	return out, nil
}

func (s *Store) PutLayout(ctx context.Context, layout template.Layout) error {
	row, err := toLayoutRow(layout)
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "encoding layout row", Cause: err}
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return &store.StoreError{Code: store.ErrAlreadyExists, Message: "layout version already exists"}
		}
		return &store.StoreError{Code: store.ErrBackend, Message: "inserting layout", Cause: err}
	}
	return nil
}

func (s *Store) GetOverride(ctx context.Context, projectID, userID, deviceID string) (override.Override, error) {
	var row overrideRow
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND device_id = ?", projectID, userID, deviceID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return override.Override{}, &store.StoreError{Code: store.ErrNotFound, Message: "no override for device " + deviceID}
	}
	if err != nil {
		return override.Override{}, &store.StoreError{Code: store.ErrBackend, Message: "querying override", Cause: err}
	}
	return row.toOverride()
}

func (s *Store) ListOverridesForUser(ctx context.Context, projectID, userID string) ([]override.Override, error) {
	var rows []overrideRow
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Order("device_id asc").
		Find(&rows).Error; err != nil {
		return nil, &store.StoreError{Code: store.ErrBackend, Message: "querying overrides", Cause: err}
	}
	out := make([]override.Override, len(rows))
	for i, r := range rows {
		ov, err := r.toOverride()
		if err != nil {
			return nil, &store.StoreError{Code: store.ErrBackend, Message: "decoding override row", Cause: err}
		}
		out[i] = ov
	}
	return out, nil
}

func (s *Store) PutOverride(ctx context.Context, ov override.Override) error {
	row, err := toOverrideRow(ov)
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "encoding override row", Cause: err}
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "upserting override", Cause: err}
	}
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, projectID, userID, deviceID string) error {
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND device_id = ?", projectID, userID, deviceID).
		Delete(&overrideRow{}).Error; err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "deleting override", Cause: err}
	}
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, entry audit.Entry) error {
	row, err := toAuditRow(entry)
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "encoding audit row", Cause: err}
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return &store.StoreError{Code: store.ErrAlreadyExists, Message: "duplicate audit entryId"}
		}
		return &store.StoreError{Code: store.ErrBackend, Message: "inserting audit entry", Cause: err}
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, projectID string) ([]audit.Entry, error) {
	var rows []auditRow
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("timestamp asc").
		Find(&rows).Error; err != nil {
		return nil, &store.StoreError{Code: store.ErrBackend, Message: "querying audit log", Cause: err}
	}
	out := make([]audit.Entry, len(rows))
	for i, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, &store.StoreError{Code: store.ErrBackend, Message: "decoding audit row", Cause: err}
		}
		out[i] = e
	}
	return out, nil
}

func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "accessing underlying connection", Cause: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &store.StoreError{Code: store.ErrBackend, Message: "ping failed", Cause: err}
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") || strings.Contains(s, "duplicate key value violates unique constraint")
}

var _ store.Store = (*Store)(nil)
