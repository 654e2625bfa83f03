package service

import (
	"context"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	obscontext "github.com/smallbiznis/cashapp/internal/observability/context"
	"github.com/smallbiznis/cashapp/internal/matchresult/domain"
	"github.com/smallbiznis/cashapp/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
	return &Service{db: p.DB, log: p.Log.Named("matchresult.service"), repo: p.Repo, audit: p.Audit}
}

// RecordMatch persists a completed Matcher run and its allocation lines,
// then records an audit event (spec.md §4.6 "atomic write of parent +
// children", serializable isolation).
func (s *Service) RecordMatch(ctx context.Context, req domain.RecordMatchServiceRequest) (domain.RecordMatchResponse, error) {
	if req.TransactionID == "" {
		return domain.RecordMatchResponse{}, domain.ErrInvalidTransactionID
	}

	unapplied, err := money.Parse(req.UnappliedAmount)
	if err != nil {
		return domain.RecordMatchResponse{}, err
	}

	matches := make([]domain.InvoicePaymentMatch, 0, len(req.Allocations))
	for _, alloc := range req.Allocations {
		amount, err := money.Parse(alloc.AmountApplied)
		if err != nil {
			return domain.RecordMatchResponse{}, err
		}
		if amount.Sign() <= 0 {
			return domain.RecordMatchResponse{}, domain.ErrInvalidAllocation
		}
		matches = append(matches, domain.InvoicePaymentMatch{InvoiceID: alloc.InvoiceID, AmountApplied: amount})
	}

	result := domain.MatchResult{
		TransactionID:       req.TransactionID,
		Status:              req.Status,
		UnappliedAmount:     unapplied,
		DiscrepancyCode:     req.DiscrepancyCode,
		Confidence:          req.Confidence,
		AlgorithmVersion:    req.AlgorithmVersion,
		LogEntry:            req.LogEntry,
		RequiresHumanReview: req.RequiresHumanReview,
		ProcessingTimeMS:    req.ProcessingTimeMS,
	}

	matchResultID, err := s.repo.RecordMatch(ctx, s.db, domain.RecordMatchRequest{Result: result, Matches: matches})
	if err != nil {
		return domain.RecordMatchResponse{}, err
	}

	correlationID := obscontext.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = req.TransactionID
	}
	transactionID := req.TransactionID
	if _, err := s.audit.AppendAudit(ctx, "MatchRecorded", "matchresult.service", correlationID, &transactionID, map[string]any{
		"match_result_id":  matchResultID,
		"status":           string(req.Status),
		"discrepancy_code": string(req.DiscrepancyCode),
		"confidence":       req.Confidence,
	}); err != nil {
		s.log.Warn("failed to append audit event for recorded match", zap.Error(err), zap.String("transaction_id", req.TransactionID))
	}

	return domain.RecordMatchResponse{MatchResultID: matchResultID}, nil
}

func (s *Service) Get(ctx context.Context, matchResultID int64) (*domain.MatchResult, []domain.InvoicePaymentMatch, error) {
	return s.repo.Get(ctx, s.db, matchResultID)
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.MatchResult, error) {
	return s.repo.ListByTransaction(ctx, s.db, transactionID)
}
