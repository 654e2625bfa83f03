package service

import (
	"context"

	"github.com/smallbiznis/cashapp/internal/communication/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{db: p.DB, log: p.Log.Named("communication.service"), repo: p.Repo}
}

func (s *Service) RecordCommunication(ctx context.Context, req domain.RecordCommunicationRequest) (domain.RecordCommunicationResponse, error) {
	if req.Recipient == "" {
		return domain.RecordCommunicationResponse{}, domain.ErrInvalidRecipient
	}
	if req.Template == "" {
		return domain.RecordCommunicationResponse{}, domain.ErrInvalidTemplate
	}

	status := req.DeliveryStatus
	if status == "" {
		status = domain.DeliveryQueued
	}

	event := domain.CommunicationEvent{
		TransactionID:  req.TransactionID,
		Kind:           req.Kind,
		Template:       req.Template,
		Recipient:      req.Recipient,
		Payload:        datatypes.JSONMap(req.Payload),
		DeliveryStatus: status,
		Error:          req.Error,
	}

	id, err := s.repo.Record(ctx, s.db, &event)
	if err != nil {
		return domain.RecordCommunicationResponse{}, err
	}
	return domain.RecordCommunicationResponse{CommunicationEventID: id}, nil
}

func (s *Service) MarkDelivered(ctx context.Context, communicationEventID int64) error {
	return s.repo.UpdateDeliveryStatus(ctx, s.db, communicationEventID, domain.DeliveryDelivered, nil)
}

func (s *Service) MarkFailed(ctx context.Context, communicationEventID int64, deliveryErr error) error {
	msg := deliveryErr.Error()
	if err := s.repo.UpdateDeliveryStatus(ctx, s.db, communicationEventID, domain.DeliveryFailed, &msg); err != nil {
		return err
	}
	s.log.Warn("communication delivery failed", zap.Int64("communication_event_id", communicationEventID), zap.Error(deliveryErr))
	return nil
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.CommunicationEvent, error) {
	return s.repo.ListByTransaction(ctx, s.db, transactionID)
}
