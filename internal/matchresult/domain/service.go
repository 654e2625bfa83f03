package domain

import "context"

// RecordMatchAllocation is one allocation line in the service-layer
// request, keyed by invoice_id/amount_applied only (the Matcher's own
// output shape, spec.md §4.3).
type RecordMatchAllocation struct {
	InvoiceID     string
	AmountApplied string // canonical decimal string
}

// RecordMatchServiceRequest is the Matcher's Result translated into a
// persistence call.
type RecordMatchServiceRequest struct {
	TransactionID       string
	Status              Status
	UnappliedAmount     string
	DiscrepancyCode     DiscrepancyCode
	Confidence          float64
	AlgorithmVersion    string
	LogEntry            string
	RequiresHumanReview bool
	ProcessingTimeMS    int64
	Allocations         []RecordMatchAllocation
}

// RecordMatchResponse returns the generated MatchResultID so callers (the
// Orchestrator) can reference it in the next workflow step.
type RecordMatchResponse struct {
	MatchResultID int64
}

// Service is the Audit Store's RecordMatch contract (spec.md §4.6), plus
// read paths for the Orchestrator and HTTP layer.
type Service interface {
	RecordMatch(ctx context.Context, req RecordMatchServiceRequest) (RecordMatchResponse, error)
	Get(ctx context.Context, matchResultID int64) (*MatchResult, []InvoicePaymentMatch, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*MatchResult, error)
}
