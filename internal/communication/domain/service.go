package domain

import "context"

// RecordCommunicationRequest is the Audit Store's write-only contract for
// logging a dispatch attempt (spec.md §4.6). Payload carries the rendered
// template fields, not the raw recipient secrets.
type RecordCommunicationRequest struct {
	TransactionID  *string
	Kind           Kind
	Template       string
	Recipient      string
	Payload        map[string]any
	DeliveryStatus DeliveryStatus
	Error          *string
}

type RecordCommunicationResponse struct {
	CommunicationEventID int64
}

// Service records communication events and lets a dispatcher later
// update the delivery status once the transport confirms or fails.
type Service interface {
	RecordCommunication(ctx context.Context, req RecordCommunicationRequest) (RecordCommunicationResponse, error)
	MarkDelivered(ctx context.Context, communicationEventID int64) error
	MarkFailed(ctx context.Context, communicationEventID int64, deliveryErr error) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*CommunicationEvent, error)
}
