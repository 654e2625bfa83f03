// Package domain defines the PaymentTransaction entity and the Audit
// Store's transaction-claim contract (spec.md §3/§4.6).
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cashapp/internal/money"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessingStatus is the transaction's position in the workflow state
// machine (spec.md §4.4).
type ProcessingStatus string

const (
	StatusPending          ProcessingStatus = "Pending"
	StatusProcessing       ProcessingStatus = "Processing"
	StatusMatched          ProcessingStatus = "Matched"
	StatusPartiallyMatched ProcessingStatus = "PartiallyMatched"
	StatusUnmatched        ProcessingStatus = "Unmatched"
	StatusRequiresReview   ProcessingStatus = "RequiresReview"
	StatusError            ProcessingStatus = "Error"
)

// IsTerminal reports whether the status is a workflow end state.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case StatusMatched, StatusPartiallyMatched, StatusUnmatched, StatusRequiresReview, StatusError:
		return true
	default:
		return false
	}
}

// PaymentTransaction is an incoming remittance to be matched against open
// invoices (spec.md §3).
type PaymentTransaction struct {
	TransactionID         string            `json:"transaction_id" gorm:"primaryKey;type:text"`
	SourceAccountRef      string            `json:"source_account_ref" gorm:"type:text;not null;index"`
	Amount                money.Amount      `json:"amount" gorm:"type:bigint;not null"`
	Currency              string            `json:"currency" gorm:"type:text;not null"`
	ValueDate             time.Time         `json:"value_date" gorm:"not null"`
	RawRemittanceData     string            `json:"raw_remittance_data" gorm:"type:text"`
	CustomerIdentifier    *string           `json:"customer_identifier,omitempty" gorm:"type:text"`
	AssociatedDocumentURIs datatypes.JSONSlice[string] `json:"associated_document_uris,omitempty"`
	ProcessingStatus      ProcessingStatus  `json:"processing_status" gorm:"type:text;not null;index"`
	WorkflowID            *string           `json:"workflow_id,omitempty" gorm:"type:text;index"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time         `json:"updated_at" gorm:"not null"`
}

func (PaymentTransaction) TableName() string { return "transactions" }

// ClaimResult reports whether this call performed the claim or found an
// existing transaction already claimed.
type ClaimResult struct {
	Claimed        bool
	ExistingStatus ProcessingStatus
}

// Repository is the persistence boundary for PaymentTransaction.
type Repository interface {
	// Claim atomically inserts the transaction row if transaction_id does
	// not already exist, returning Claimed=false with the existing row's
	// status on conflict (spec.md §4.4 idempotent Claim).
	Claim(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) (ClaimResult, error)
	Get(ctx context.Context, db *gorm.DB, transactionID string) (*PaymentTransaction, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, transactionID string, status ProcessingStatus, workflowID *string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PaymentTransaction, error)
}

// ListFilter narrows QueryTransactions results (spec.md §4.6).
type ListFilter struct {
	Status           ProcessingStatus
	SourceAccountRef string
	Limit            int
	Offset           int
}

var (
	ErrInvalidTransaction = errors.New("transaction: transaction_id is required")
	ErrInvalidAmount      = errors.New("transaction: amount must be >= 0")
	ErrNotFound           = errors.New("transaction: not found")
)
