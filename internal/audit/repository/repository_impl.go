package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/cashapp/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.AuditEvent) (int64, error) {
	if event == nil {
		return 0, nil
	}
	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		return 0, err
	}
	return event.Seq, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	stmt := db.WithContext(ctx).Model(&domain.AuditEvent{})

	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}
	if source := strings.TrimSpace(filter.Source); source != "" {
		stmt = stmt.Where("source = ?", source)
	}
	if correlationID := strings.TrimSpace(filter.CorrelationID); correlationID != "" {
		stmt = stmt.Where("correlation_id = ?", correlationID)
	}
	if transactionID := strings.TrimSpace(filter.TransactionID); transactionID != "" {
		stmt = stmt.Where("transaction_id = ?", transactionID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("ts >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("ts <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(ts < ?) OR (ts = ? AND seq < ?)",
			filter.Cursor.Ts,
			filter.Cursor.Ts,
			filter.Cursor.Seq,
		)
	}

	stmt = stmt.Order("ts desc, seq desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
