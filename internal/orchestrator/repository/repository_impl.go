package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository { return &repo{} }

func (r *repo) Create(ctx context.Context, db *gorm.DB, record *domain.WorkflowRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, workflowID string) (*domain.WorkflowRecord, error) {
	var record domain.WorkflowRecord
	if err := db.WithContext(ctx).First(&record, "workflow_id = ?", workflowID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) GetByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.WorkflowRecord, error) {
	var record domain.WorkflowRecord
	err := db.WithContext(ctx).First(&record, "transaction_id = ?", transactionID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// AdvanceStep performs a conditional UPDATE guarded by the expected prior
// step, the same idiom the reviewed repo's scheduler uses to avoid two
// racing instances double-processing the same row (spec.md §4.4 resumable
// checkpoints).
func (r *repo) AdvanceStep(ctx context.Context, db *gorm.DB, workflowID string, fromStep, toStep domain.Step, state domain.State) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.WorkflowRecord{}).
		Where("workflow_id = ? AND last_step = ?", workflowID, fromStep).
		Updates(map[string]any{"last_step": toStep, "state": state})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, workflowID string, state domain.State, matchResultID *int64, workflowErr *string) (bool, error) {
	updates := map[string]any{
		"state":     state,
		"last_step": domain.StepFinalized,
	}
	if matchResultID != nil {
		updates["match_result_id"] = *matchResultID
	}
	if workflowErr != nil {
		updates["error"] = *workflowErr
	}
	res := db.WithContext(ctx).Model(&domain.WorkflowRecord{}).
		Where("workflow_id = ? AND last_step <> ?", workflowID, domain.StepFinalized).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RequestCancel(ctx context.Context, db *gorm.DB, workflowID string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.WorkflowRecord{}).
		Where("workflow_id = ? AND last_step <> ?", workflowID, domain.StepFinalized).
		Update("cancel_requested", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListStuck(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]*domain.WorkflowRecord, error) {
	var records []*domain.WorkflowRecord
	err := db.WithContext(ctx).
		Where("last_step <> ? AND deadline_at <= ?", domain.StepFinalized, asOf).
		Order("deadline_at asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
