package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	obscontext "github.com/smallbiznis/cashapp/internal/observability/context"
	"github.com/smallbiznis/cashapp/internal/money"
	"github.com/smallbiznis/cashapp/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("transaction.service"),
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Claim(ctx context.Context, req domain.ClaimTransactionRequest) (domain.ClaimTransactionResponse, error) {
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return domain.ClaimTransactionResponse{}, domain.ErrInvalidTransaction
	}
	sourceAccountRef := strings.TrimSpace(req.SourceAccountRef)
	if sourceAccountRef == "" {
		return domain.ClaimTransactionResponse{}, domain.ErrInvalidTransaction
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		return domain.ClaimTransactionResponse{}, domain.ErrInvalidAmount
	}
	if amount.Sign() < 0 {
		return domain.ClaimTransactionResponse{}, domain.ErrInvalidAmount
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return domain.ClaimTransactionResponse{}, domain.ErrInvalidTransaction
	}

	txn := &domain.PaymentTransaction{
		TransactionID:          transactionID,
		SourceAccountRef:       sourceAccountRef,
		Amount:                 amount,
		Currency:               currency,
		ValueDate:              req.ValueDate,
		RawRemittanceData:      req.RawRemittanceData,
		CustomerIdentifier:     req.CustomerIdentifier,
		AssociatedDocumentURIs: datatypes.JSONSlice[string](req.AssociatedDocumentURIs),
		ProcessingStatus:       domain.StatusPending,
	}

	result, err := s.repo.Claim(ctx, s.db, txn)
	if err != nil {
		s.log.Warn("failed to claim transaction", zap.String("transaction_id", transactionID), zap.Error(err))
		return domain.ClaimTransactionResponse{}, err
	}

	if result.Claimed {
		correlationID := obscontext.CorrelationIDFromContext(ctx)
		if correlationID == "" {
			correlationID = transactionID
		}
		if _, auditErr := s.audit.AppendAudit(ctx, "TransactionClaimed", "transaction.service", correlationID, &transactionID, map[string]any{
			"source_account_ref": sourceAccountRef,
			"amount":              amount.String(),
			"currency":            currency,
		}); auditErr != nil {
			s.log.Warn("failed to record TransactionClaimed audit event", zap.String("transaction_id", transactionID), zap.Error(auditErr))
		}
	}

	return domain.ClaimTransactionResponse{Claimed: result.Claimed, ExistingStatus: result.ExistingStatus}, nil
}

func (s *Service) Get(ctx context.Context, transactionID string) (*domain.PaymentTransaction, error) {
	return s.repo.Get(ctx, s.db, strings.TrimSpace(transactionID))
}

func (s *Service) UpdateStatus(ctx context.Context, transactionID string, status domain.ProcessingStatus, workflowID *string) error {
	updated, err := s.repo.UpdateStatus(ctx, s.db, strings.TrimSpace(transactionID), status, workflowID)
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}

	correlationID := obscontext.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = transactionID
	}
	if _, auditErr := s.audit.AppendAudit(ctx, "TransactionStatusChanged", "transaction.service", correlationID, &transactionID, map[string]any{
		"status": string(status),
	}); auditErr != nil {
		s.log.Warn("failed to record TransactionStatusChanged audit event", zap.String("transaction_id", transactionID), zap.Error(auditErr))
	}
	return nil
}

func (s *Service) Query(ctx context.Context, req domain.QueryTransactionsRequest) (domain.QueryTransactionsResponse, error) {
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Status:           req.Status,
		SourceAccountRef: req.SourceAccountRef,
		Limit:            req.Limit,
		Offset:           req.Offset,
	})
	if err != nil {
		return domain.QueryTransactionsResponse{}, err
	}

	txns := make([]domain.PaymentTransaction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		txns = append(txns, *item)
	}
	return domain.QueryTransactionsResponse{Transactions: txns}, nil
}
