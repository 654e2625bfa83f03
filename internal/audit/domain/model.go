package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEvent is the append-only audit log entry described in spec.md §3/§4.6.
// seq is strictly increasing and entries are never mutated or deleted.
type AuditEvent struct {
	Seq           int64             `json:"seq" gorm:"primaryKey;autoIncrement"`
	Ts            time.Time         `json:"ts" gorm:"not null;index"`
	EventType     string            `json:"event_type" gorm:"type:text;not null;index"`
	Source        string            `json:"source" gorm:"type:text;not null"`
	CorrelationID string            `json:"correlation_id" gorm:"type:text;not null;index"`
	TransactionID *string           `json:"transaction_id,omitempty" gorm:"type:text;index"`
	Data          datatypes.JSONMap `json:"data"`
}

func (AuditEvent) TableName() string { return "audit_log" }

// ListFilter narrows QueryAudit results. Cursor-based pagination mirrors the
// reviewed repo's audit list endpoint, keyed on (ts, seq) descending.
type ListFilter struct {
	EventType     string
	Source        string
	CorrelationID string
	TransactionID string
	StartAt       *time.Time
	EndAt         *time.Time
	Cursor        *Cursor
	Limit         int
}

// Cursor identifies a pagination position.
type Cursor struct {
	Seq int64
	Ts  time.Time
}

// Repository is the persistence boundary for AuditEvent.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *AuditEvent) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEvent, error)
}

var (
	ErrInvalidEventType = errors.New("audit: event_type is required")
	ErrInvalidTimeRange = errors.New("audit: start_at must not be after end_at")
	ErrInvalidPageToken = errors.New("audit: invalid page token")
)
