package repository

import (
	"context"

	"github.com/smallbiznis/cashapp/internal/communication/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) Record(ctx context.Context, db *gorm.DB, event *domain.CommunicationEvent) (int64, error) {
	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		return 0, err
	}
	return event.CommunicationEventID, nil
}

func (r *repo) UpdateDeliveryStatus(ctx context.Context, db *gorm.DB, communicationEventID int64, status domain.DeliveryStatus, deliveryErr *string) error {
	updates := map[string]any{"delivery_status": status}
	if deliveryErr != nil {
		updates["error"] = *deliveryErr
	}
	res := db.WithContext(ctx).Model(&domain.CommunicationEvent{}).
		Where("communication_event_id = ?", communicationEventID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, transactionID string) ([]*domain.CommunicationEvent, error) {
	var events []*domain.CommunicationEvent
	if err := db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("created_at desc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
