package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/internal/transaction/domain"
	"github.com/smallbiznis/cashapp/internal/transaction/repository"
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
	if err := db.AutoMigrate(&domain.PaymentTransaction{}); err != nil {
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

func validClaim(transactionID string) domain.ClaimTransactionRequest {
	return domain.ClaimTransactionRequest{
		TransactionID:    transactionID,
		SourceAccountRef: "acct-1",
		Amount:           "1234.56",
		Currency:         "usd",
		ValueDate:        time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestClaimTransactionFirstCallerClaims(t *testing.T) {
	svc, audit := newTestService(t)
	resp, err := svc.Claim(context.Background(), validClaim("txn-1"))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !resp.Claimed {
		t.Fatalf("expected Claimed=true on first call")
	}
	if audit.appended != 1 {
		t.Fatalf("expected 1 audit event, got %d", audit.appended)
	}
}

func TestClaimTransactionSecondCallerDoesNotClaim(t *testing.T) {
	svc, audit := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, validClaim("txn-2")); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	resp, err := svc.Claim(ctx, validClaim("txn-2"))
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if resp.Claimed {
		t.Fatalf("expected Claimed=false on duplicate claim")
	}
	if resp.ExistingStatus != domain.StatusPending {
		t.Fatalf("expected existing status Pending, got %s", resp.ExistingStatus)
	}
	if audit.appended != 1 {
		t.Fatalf("expected audit event only on first claim, got %d", audit.appended)
	}
}

func TestClaimTransactionRejectsNegativeAmount(t *testing.T) {
	svc, _ := newTestService(t)
	req := validClaim("txn-3")
	req.Amount = "-10.00"
	if _, err := svc.Claim(context.Background(), req); err != domain.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestClaimTransactionRejectsEmptyID(t *testing.T) {
	svc, _ := newTestService(t)
	req := validClaim("")
	if _, err := svc.Claim(context.Background(), req); err != domain.ErrInvalidTransaction {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestUpdateStatusRecordsAuditEvent(t *testing.T) {
	svc, audit := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, validClaim("txn-4")); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := svc.UpdateStatus(ctx, "txn-4", domain.StatusMatched, nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := svc.Get(ctx, "txn-4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ProcessingStatus != domain.StatusMatched {
		t.Fatalf("expected status Matched, got %s", got.ProcessingStatus)
	}
	if audit.appended != 2 {
		t.Fatalf("expected 2 audit events (claim + status change), got %d", audit.appended)
	}
}

func TestUpdateStatusUnknownTransactionReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.UpdateStatus(context.Background(), "missing", domain.StatusMatched, nil); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
