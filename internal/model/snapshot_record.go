package model

import (
	"time"
)

// SnapshotRecord stores a serialized rule snapshot in the SQL backend
type SnapshotRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Payload   string    `json:"payload" gorm:"type:longtext;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for SnapshotRecord
func (SnapshotRecord) TableName() string {
	return "rule_snapshots"
}
