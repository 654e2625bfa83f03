package service

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/internal/audit/repository"
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
	if err := db.AutoMigrate(&auditdomain.AuditEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		db:   mustDB(t),
		log:  zap.NewNop(),
		repo: repository.Provide(),
	}
}

func TestAppendAuditAssignsIncreasingSeq(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	txnID := "txn-1"
	first, err := svc.AppendAudit(ctx, "TransactionClaimed", "orchestrator", "corr-1", &txnID, map[string]any{"source_account_ref": "acct-1"})
	if err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	second, err := svc.AppendAudit(ctx, "TransactionMatched", "orchestrator", "corr-1", &txnID, map[string]any{"status": "Matched"})
	if err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if second <= first {
		t.Fatalf("expected seq to increase monotonically, got %d then %d", first, second)
	}
}

func TestAppendAuditRejectsEmptyEventType(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.AppendAudit(context.Background(), "", "orchestrator", "corr-1", nil, nil); err != auditdomain.ErrInvalidEventType {
		t.Fatalf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestQueryAuditFiltersByCorrelationID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AppendAudit(ctx, "TransactionClaimed", "orchestrator", "corr-1", nil, nil); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if _, err := svc.AppendAudit(ctx, "TransactionClaimed", "orchestrator", "corr-2", nil, nil); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	resp, err := svc.QueryAudit(ctx, auditdomain.QueryAuditRequest{CorrelationID: "corr-1"})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(resp.Events))
	}
	if resp.Events[0].CorrelationID != "corr-1" {
		t.Fatalf("expected corr-1, got %s", resp.Events[0].CorrelationID)
	}
}

func TestQueryAuditRejectsInvertedTimeRange(t *testing.T) {
	svc := newTestService(t)
	start := "2026-01-02T00:00:00Z"
	end := "2026-01-01T00:00:00Z"
	_, err := svc.QueryAudit(context.Background(), auditdomain.QueryAuditRequest{StartAt: &start, EndAt: &end})
	if err != auditdomain.ErrInvalidTimeRange {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
}
