// Package domain defines the CommunicationEvent entity and the Audit
// Store's RecordCommunication contract (spec.md §3/§4.6).
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind is the category of communication dispatched (spec.md §3).
type Kind string

const (
	KindCustomerClarification Kind = "CustomerClarification"
	KindInternalAlert         Kind = "InternalAlert"
	KindConfirmation          Kind = "Confirmation"
)

// DeliveryStatus tracks a dispatch attempt's outcome (spec.md §3).
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "Queued"
	DeliverySent      DeliveryStatus = "Sent"
	DeliveryDelivered DeliveryStatus = "Delivered"
	DeliveryFailed    DeliveryStatus = "Failed"
)

// CommunicationEvent is one dispatched (or attempted) notification
// (spec.md §3).
type CommunicationEvent struct {
	CommunicationEventID int64             `json:"communication_event_id" gorm:"primaryKey;autoIncrement"`
	TransactionID        *string           `json:"transaction_id,omitempty" gorm:"type:text;index"`
	Kind                 Kind              `json:"kind" gorm:"type:text;not null"`
	Template             string            `json:"template" gorm:"type:text;not null"`
	Recipient            string            `json:"recipient" gorm:"type:text;not null"`
	Payload              datatypes.JSONMap `json:"payload"`
	DeliveryStatus       DeliveryStatus    `json:"delivery_status" gorm:"type:text;not null"`
	Error                *string           `json:"error,omitempty" gorm:"type:text"`
	CreatedAt            time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"not null"`
}

func (CommunicationEvent) TableName() string { return "communication_events" }

// Repository is the persistence boundary for CommunicationEvent.
type Repository interface {
	Record(ctx context.Context, db *gorm.DB, event *CommunicationEvent) (int64, error)
	UpdateDeliveryStatus(ctx context.Context, db *gorm.DB, communicationEventID int64, status DeliveryStatus, deliveryErr *string) error
	ListByTransaction(ctx context.Context, db *gorm.DB, transactionID string) ([]*CommunicationEvent, error)
}

var (
	ErrInvalidRecipient = errors.New("communication: recipient is required")
	ErrInvalidTemplate  = errors.New("communication: template is required")
	ErrNotFound         = errors.New("communication: not found")
)
