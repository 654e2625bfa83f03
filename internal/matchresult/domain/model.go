// Package domain defines the MatchResult/InvoicePaymentMatch entities and
// the Audit Store's RecordMatch contract (spec.md §3/§4.6).
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cashapp/internal/money"
	"gorm.io/gorm"
)

// Status mirrors the Matcher's result status (spec.md §3).
type Status string

const (
	StatusMatched          Status = "Matched"
	StatusPartiallyMatched Status = "PartiallyMatched"
	StatusUnmatched        Status = "Unmatched"
)

// DiscrepancyCode mirrors the Matcher's discrepancy classification.
type DiscrepancyCode string

const (
	DiscrepancyShortPayment     DiscrepancyCode = "ShortPayment"
	DiscrepancyOverPayment      DiscrepancyCode = "OverPayment"
	DiscrepancyInvalidInvoice   DiscrepancyCode = "InvalidInvoice"
	DiscrepancyCurrencyMismatch DiscrepancyCode = "CurrencyMismatch"
	DiscrepancyDuplicatePayment DiscrepancyCode = "DuplicatePayment"
	DiscrepancyNone             DiscrepancyCode = "None"
)

// MatchResult is one completed matching attempt for a transaction
// (spec.md §3).
type MatchResult struct {
	MatchResultID       int64           `json:"match_result_id" gorm:"primaryKey;autoIncrement"`
	TransactionID       string          `json:"transaction_id" gorm:"type:text;not null;index"`
	Status              Status          `json:"status" gorm:"type:text;not null"`
	UnappliedAmount     money.Amount    `json:"unapplied_amount" gorm:"type:bigint;not null"`
	DiscrepancyCode     DiscrepancyCode `json:"discrepancy_code" gorm:"type:text;not null"`
	Confidence          float64         `json:"confidence" gorm:"not null"`
	AlgorithmVersion    string          `json:"algorithm_version" gorm:"type:text;not null"`
	LogEntry            string          `json:"log_entry" gorm:"type:text"`
	RequiresHumanReview bool            `json:"requires_human_review" gorm:"not null"`
	ProcessingTimeMS    int64           `json:"processing_time_ms" gorm:"not null"`
	CreatedAt           time.Time       `json:"created_at" gorm:"not null"`
}

func (MatchResult) TableName() string { return "match_results" }

// InvoicePaymentMatch is the relation entity between a MatchResult and one
// allocated invoice (spec.md §3): amount_applied > 0, unique per
// (match_result_id, invoice_id).
type InvoicePaymentMatch struct {
	InvoicePaymentMatchID int64        `json:"invoice_payment_match_id" gorm:"primaryKey;autoIncrement"`
	MatchResultID         int64        `json:"match_result_id" gorm:"not null;uniqueIndex:idx_match_invoice"`
	InvoiceID             string       `json:"invoice_id" gorm:"type:text;not null;uniqueIndex:idx_match_invoice"`
	AmountApplied         money.Amount `json:"amount_applied" gorm:"type:bigint;not null"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null"`
}

func (InvoicePaymentMatch) TableName() string { return "invoice_payment_matches" }

// RecordMatchRequest is the atomic parent-plus-children write spec.md §4.6
// requires.
type RecordMatchRequest struct {
	Result  MatchResult
	Matches []InvoicePaymentMatch
}

// Repository is the persistence boundary for MatchResult/
// InvoicePaymentMatch.
type Repository interface {
	// RecordMatch inserts the MatchResult and its InvoicePaymentMatch
	// children inside a single transaction, serializable isolation
	// (spec.md §4.6 "Guarantees").
	RecordMatch(ctx context.Context, db *gorm.DB, req RecordMatchRequest) (int64, error)
	Get(ctx context.Context, db *gorm.DB, matchResultID int64) (*MatchResult, []InvoicePaymentMatch, error)
	ListByTransaction(ctx context.Context, db *gorm.DB, transactionID string) ([]*MatchResult, error)
}

var (
	ErrInvalidTransactionID = errors.New("matchresult: transaction_id is required")
	ErrInvalidAllocation    = errors.New("matchresult: every amount_applied must be > 0")
	ErrNotFound             = errors.New("matchresult: not found")
)
