package repository

import (
	"context"

	"github.com/smallbiznis/cashapp/internal/transaction/domain"
	db "github.com/smallbiznis/cashapp/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Claim inserts txn if its transaction_id is not already present. A
// conflict means another caller already claimed it; the existing row's
// status is fetched and returned with Claimed=false so callers can resume
// idempotently instead of reprocessing (spec.md §4.4).
func (r *repo) Claim(ctx context.Context, conn *gorm.DB, txn *domain.PaymentTransaction) (domain.ClaimResult, error) {
	result := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(txn)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return r.existingStatus(ctx, conn, txn.TransactionID)
		}
		return domain.ClaimResult{}, result.Error
	}
	if result.RowsAffected > 0 {
		return domain.ClaimResult{Claimed: true, ExistingStatus: txn.ProcessingStatus}, nil
	}
	return r.existingStatus(ctx, conn, txn.TransactionID)
}

func (r *repo) existingStatus(ctx context.Context, conn *gorm.DB, transactionID string) (domain.ClaimResult, error) {
	existing, err := r.Get(ctx, conn, transactionID)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{Claimed: false, ExistingStatus: existing.ProcessingStatus}, nil
}

func (r *repo) Get(ctx context.Context, conn *gorm.DB, transactionID string) (*domain.PaymentTransaction, error) {
	var txn domain.PaymentTransaction
	err := conn.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, transactionID string, status domain.ProcessingStatus, workflowID *string) (bool, error) {
	updates := map[string]any{"processing_status": status}
	if workflowID != nil {
		updates["workflow_id"] = *workflowID
	}
	result := conn.WithContext(ctx).Model(&domain.PaymentTransaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]*domain.PaymentTransaction, error) {
	var txns []*domain.PaymentTransaction
	stmt := conn.WithContext(ctx).Model(&domain.PaymentTransaction{})

	if filter.Status != "" {
		stmt = stmt.Where("processing_status = ?", filter.Status)
	}
	if filter.SourceAccountRef != "" {
		stmt = stmt.Where("source_account_ref = ?", filter.SourceAccountRef)
	}

	stmt = stmt.Order("created_at desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		stmt = stmt.Offset(filter.Offset)
	}

	if err := stmt.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
