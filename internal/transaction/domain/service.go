package domain

import (
	"context"
	"time"
)

// ClaimTransactionRequest is the input to the Claim operation (spec.md §4.6
// `ClaimTransaction(id)->{claimed,existing_status}`).
type ClaimTransactionRequest struct {
	TransactionID          string
	SourceAccountRef       string
	Amount                 string // canonical decimal string, e.g. "1234.56"
	Currency               string
	ValueDate              time.Time
	RawRemittanceData      string
	CustomerIdentifier     *string
	AssociatedDocumentURIs []string
}

// ClaimTransactionResponse mirrors ClaimResult at the service boundary.
type ClaimTransactionResponse struct {
	Claimed        bool
	ExistingStatus ProcessingStatus
}

// QueryTransactionsRequest narrows a list call (spec.md §4.6).
type QueryTransactionsRequest struct {
	Status           ProcessingStatus
	SourceAccountRef string
	Limit            int
	Offset           int
}

// QueryTransactionsResponse is the list call's result.
type QueryTransactionsResponse struct {
	Transactions []PaymentTransaction
}

// Service is the transaction domain's use-case boundary, consumed by the
// HTTP layer and the Orchestrator.
type Service interface {
	// Claim is the idempotent entry point into the workflow: the first
	// caller for a given transaction_id gets Claimed=true and proceeds to
	// drive the workflow; subsequent callers with the same id get
	// Claimed=false and the transaction's current status so they can
	// short-circuit instead of reprocessing.
	Claim(ctx context.Context, req ClaimTransactionRequest) (ClaimTransactionResponse, error)
	Get(ctx context.Context, transactionID string) (*PaymentTransaction, error)
	UpdateStatus(ctx context.Context, transactionID string, status ProcessingStatus, workflowID *string) error
	Query(ctx context.Context, req QueryTransactionsRequest) (QueryTransactionsResponse, error)
}
