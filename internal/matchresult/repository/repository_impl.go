package repository

import (
	"context"
	"database/sql"

	"github.com/smallbiznis/cashapp/internal/matchresult/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

// RecordMatch writes the MatchResult parent row and its
// InvoicePaymentMatch children inside a single transaction (spec.md §4.6
// "atomic write of parent + children"), mirroring the reviewed repo's
// postInvoiceToLedger pattern of writing a header plus its lines within
// one caller-managed transaction.
func (r *repo) RecordMatch(ctx context.Context, db *gorm.DB, req domain.RecordMatchRequest) (int64, error) {
	var matchResultID int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := req.Result
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		matchResultID = result.MatchResultID

		for i := range req.Matches {
			req.Matches[i].MatchResultID = matchResultID
		}
		if len(req.Matches) > 0 {
			if err := tx.Create(&req.Matches).Error; err != nil {
				return err
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	return matchResultID, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, matchResultID int64) (*domain.MatchResult, []domain.InvoicePaymentMatch, error) {
	var result domain.MatchResult
	if err := db.WithContext(ctx).First(&result, "match_result_id = ?", matchResultID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}

	var matches []domain.InvoicePaymentMatch
	if err := db.WithContext(ctx).Where("match_result_id = ?", matchResultID).Find(&matches).Error; err != nil {
		return nil, nil, err
	}
	return &result, matches, nil
}

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, transactionID string) ([]*domain.MatchResult, error) {
	var results []*domain.MatchResult
	if err := db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("created_at desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
