package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/cashapp/internal/communication/domain"
	"github.com/smallbiznis/cashapp/internal/communication/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func mustDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.CommunicationEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{db: mustDB(t), log: zap.NewNop(), repo: repository.Provide()}
}

func validRequest() domain.RecordCommunicationRequest {
	txnID := "txn-1"
	return domain.RecordCommunicationRequest{
		TransactionID: &txnID,
		Kind:          domain.KindCustomerClarification,
		Template:      "remittance-clarification",
		Recipient:     "ap@customer.example",
		Payload:       map[string]any{"invoice_id": "inv-1"},
	}
}

func TestRecordCommunicationDefaultsToQueued(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.RecordCommunication(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("RecordCommunication: %v", err)
	}
	if resp.CommunicationEventID == 0 {
		t.Fatalf("expected a non-zero communication_event_id")
	}

	events, err := svc.ListByTransaction(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if len(events) != 1 || events[0].DeliveryStatus != domain.DeliveryQueued {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRecordCommunicationRejectsEmptyRecipient(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()
	req.Recipient = ""
	if _, err := svc.RecordCommunication(context.Background(), req); err != domain.ErrInvalidRecipient {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestRecordCommunicationRejectsEmptyTemplate(t *testing.T) {
	svc := newTestService(t)
	req := validRequest()
	req.Template = ""
	if _, err := svc.RecordCommunication(context.Background(), req); err != domain.ErrInvalidTemplate {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}
}

func TestMarkDeliveredUpdatesStatus(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.RecordCommunication(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("RecordCommunication: %v", err)
	}

	if err := svc.MarkDelivered(context.Background(), resp.CommunicationEventID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	events, err := svc.ListByTransaction(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if events[0].DeliveryStatus != domain.DeliveryDelivered {
		t.Fatalf("expected Delivered, got %s", events[0].DeliveryStatus)
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.RecordCommunication(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("RecordCommunication: %v", err)
	}

	if err := svc.MarkFailed(context.Background(), resp.CommunicationEventID, errors.New("smtp timeout")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	events, err := svc.ListByTransaction(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if events[0].DeliveryStatus != domain.DeliveryFailed || events[0].Error == nil || *events[0].Error != "smtp timeout" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestMarkDeliveredUnknownIDReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	if err := svc.MarkDelivered(context.Background(), 999); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
