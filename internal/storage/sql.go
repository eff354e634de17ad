package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"telegram-forwarder/internal/model"
)

// SQLBackend stores the snapshot as one row of the rule_snapshots table
type SQLBackend struct {
	db   *gorm.DB
	name string
}

// NewSQLBackend creates a backend keyed by the record name
func NewSQLBackend(db *gorm.DB, name string) *SQLBackend {
	return &SQLBackend{db: db, name: name}
}

// Read implements Backend
func (s *SQLBackend) Read(ctx context.Context) ([]byte, error) {
	var record model.SnapshotRecord
	result := s.db.WithContext(ctx).Where("name = ?", s.name).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: database error: %v", ErrUnavailable, result.Error)
	}
	return []byte(record.Payload), nil
}

// Write implements Backend
func (s *SQLBackend) Write(ctx context.Context, data []byte) error {
	record := model.SnapshotRecord{
		Name:    s.name,
		Payload: string(data),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("%w: failed to save snapshot: %v", ErrUnavailable, result.Error)
	}
	return nil
}

// Location implements Backend
func (s *SQLBackend) Location() string {
	return "sql:" + model.SnapshotRecord{}.TableName() + "/" + s.name
}
