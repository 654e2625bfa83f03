// Package domain defines the Orchestrator's durable workflow record and its
// StartWorkflow/GetStatus/Cancel contract (spec.md §4.4).
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// State is the workflow's position in the state machine (spec.md §4.4).
type State string

const (
	StatePending          State = "Pending"
	StateProcessing       State = "Processing"
	StateMatched          State = "Matched"
	StatePartiallyMatched State = "PartiallyMatched"
	StateUnmatched        State = "Unmatched"
	StateRequiresReview   State = "RequiresReview"
	StateError            State = "Error"
)

// IsTerminal reports whether the state is a workflow end state.
func (s State) IsTerminal() bool {
	switch s {
	case StateMatched, StatePartiallyMatched, StateUnmatched, StateRequiresReview, StateError:
		return true
	default:
		return false
	}
}

// Step names the durable checkpoint a workflow last completed, so a
// replacement instance knows where to resume (spec.md §4.4 "On process
// crash, a replacement instance resumes from the last checkpoint").
type Step string

const (
	StepClaimed        Step = "Claimed"
	StepExtracted      Step = "Extracted"
	StepFetchedInvoices Step = "FetchedInvoices"
	StepMatched        Step = "Matched"
	StepPosted         Step = "Posted"
	StepCommunicated   Step = "Communicated"
	StepFinalized      Step = "Finalized"
)

// WorkflowRecord is the persisted checkpoint for one durable workflow run
// (spec.md §4.4). The durable-step boundaries are each a row update here.
type WorkflowRecord struct {
	WorkflowID        string    `json:"workflow_id" gorm:"primaryKey;type:text"`
	TransactionID     string    `json:"transaction_id" gorm:"type:text;not null;uniqueIndex:idx_workflow_transaction"`
	ERPSystem         string    `json:"erp_system" gorm:"type:text;not null"`
	State             State     `json:"state" gorm:"type:text;not null;index"`
	LastStep          Step      `json:"last_step" gorm:"type:text;not null"`
	MatchResultID     *int64    `json:"match_result_id,omitempty"`
	Error             *string   `json:"error,omitempty" gorm:"type:text"`
	CancelRequested   bool      `json:"cancel_requested" gorm:"not null;default:false"`
	StartedAt         time.Time `json:"started_at" gorm:"not null"`
	DeadlineAt        time.Time `json:"deadline_at" gorm:"not null;index"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null"`
}

func (WorkflowRecord) TableName() string { return "workflows" }

// Repository is the persistence boundary for WorkflowRecord.
type Repository interface {
	// Create inserts a new workflow row for a freshly claimed transaction.
	Create(ctx context.Context, db *gorm.DB, record *WorkflowRecord) error
	Get(ctx context.Context, db *gorm.DB, workflowID string) (*WorkflowRecord, error)
	GetByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*WorkflowRecord, error)
	// AdvanceStep conditionally updates last_step/state, guarding against a
	// stale writer racing a replacement instance (spec.md §4.4 resumability).
	AdvanceStep(ctx context.Context, db *gorm.DB, workflowID string, fromStep Step, toStep Step, state State) (bool, error)
	Finalize(ctx context.Context, db *gorm.DB, workflowID string, state State, matchResultID *int64, workflowErr *string) (bool, error)
	RequestCancel(ctx context.Context, db *gorm.DB, workflowID string) (bool, error)
	// ListStuck returns non-terminal workflows whose deadline has passed,
	// for the reconciliation sweep (spec.md §4.4 crash recovery).
	ListStuck(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]*WorkflowRecord, error)
}

var (
	ErrNotFound           = errors.New("orchestrator: workflow not found")
	ErrAlreadyTerminal    = errors.New("orchestrator: workflow already in a terminal state")
	ErrInvalidTransaction = errors.New("orchestrator: transaction_id is required")
	// ErrBusy is returned when the global concurrency gate
	// (max_concurrent_transactions) is already at capacity (spec.md §6
	// "503 Busy").
	ErrBusy = errors.New("orchestrator: at max concurrent transactions")
)
