package service

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/internal/matchresult/domain"
	"github.com/smallbiznis/cashapp/internal/matchresult/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeAudit struct {
	appended int
}

func (f *fakeAudit) AppendAudit(ctx context.Context, eventType, source, correlationID string, transactionID *string, data map[string]any) (int64, error) {
	f.appended++
	return int64(f.appended), nil
}

func (f *fakeAudit) QueryAudit(ctx context.Context, req auditdomain.QueryAuditRequest) (auditdomain.QueryAuditResponse, error) {
	return auditdomain.QueryAuditResponse{}, nil
}

func mustDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.MatchResult{}, &domain.InvoicePaymentMatch{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *fakeAudit) {
	t.Helper()
	audit := &fakeAudit{}
	return &Service{
		db:    mustDB(t),
		log:   zap.NewNop(),
		repo:  repository.Provide(),
		audit: audit,
	}, audit
}

func validRequest(transactionID string) domain.RecordMatchServiceRequest {
	return domain.RecordMatchServiceRequest{
		TransactionID:    transactionID,
		Status:           domain.StatusMatched,
		UnappliedAmount:  "0.00",
		DiscrepancyCode:  domain.DiscrepancyNone,
		Confidence:       0.99,
		AlgorithmVersion: "matcher-v1",
		Allocations: []domain.RecordMatchAllocation{
			{InvoiceID: "inv-1", AmountApplied: "100.00"},
		},
	}
}

func TestRecordMatchPersistsParentAndChildren(t *testing.T) {
	svc, audit := newTestService(t)

	resp, err := svc.RecordMatch(context.Background(), validRequest("txn-1"))
	if err != nil {
		t.Fatalf("RecordMatch: %v", err)
	}
	if resp.MatchResultID == 0 {
		t.Fatalf("expected a non-zero match_result_id")
	}
	if audit.appended != 1 {
		t.Fatalf("expected 1 audit event, got %d", audit.appended)
	}

	result, matches, err := svc.Get(context.Background(), resp.MatchResultID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result.TransactionID != "txn-1" {
		t.Fatalf("unexpected transaction id: %s", result.TransactionID)
	}
	if len(matches) != 1 || matches[0].InvoiceID != "inv-1" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestRecordMatchRejectsEmptyTransactionID(t *testing.T) {
	svc, _ := newTestService(t)
	req := validRequest("")
	if _, err := svc.RecordMatch(context.Background(), req); err != domain.ErrInvalidTransactionID {
		t.Fatalf("expected ErrInvalidTransactionID, got %v", err)
	}
}

func TestRecordMatchRejectsNonPositiveAllocation(t *testing.T) {
	svc, _ := newTestService(t)
	req := validRequest("txn-2")
	req.Allocations[0].AmountApplied = "0.00"
	if _, err := svc.RecordMatch(context.Background(), req); err != domain.ErrInvalidAllocation {
		t.Fatalf("expected ErrInvalidAllocation, got %v", err)
	}
}

func TestListByTransactionReturnsAllAttempts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordMatch(ctx, validRequest("txn-3")); err != nil {
		t.Fatalf("first RecordMatch: %v", err)
	}
	unmatched := validRequest("txn-3")
	unmatched.Status = domain.StatusUnmatched
	unmatched.DiscrepancyCode = domain.DiscrepancyInvalidInvoice
	unmatched.Confidence = 0
	unmatched.UnappliedAmount = "100.00"
	unmatched.Allocations = nil
	if _, err := svc.RecordMatch(ctx, unmatched); err != nil {
		t.Fatalf("second RecordMatch: %v", err)
	}

	results, err := svc.ListByTransaction(ctx, "txn-3")
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 match results, got %d", len(results))
	}
}
