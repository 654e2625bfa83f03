// Package domain defines the ERP Facade's normalized model: invoices,
// applications, the adapter interface every ERP variant implements, and the
// error taxonomy the facade translates ERP-specific failures into
// (spec.md §4.2/§7).
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cashapp/internal/money"
)

// InvoiceStatus mirrors the ERP's own invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceOpen     InvoiceStatus = "Open"
	InvoiceClosed   InvoiceStatus = "Closed"
	InvoiceDisputed InvoiceStatus = "Disputed"
	InvoiceOverdue  InvoiceStatus = "Overdue"
)

// Invoice is the normalized representation returned by every adapter,
// regardless of the underlying ERP's native schema (spec.md §3).
type Invoice struct {
	InvoiceID      string
	ERPSystem      string
	CustomerID     string
	OriginalAmount money.Amount
	AmountDue      money.Amount
	Currency       string
	Status         InvoiceStatus
	DueDate        *time.Time
	ERPRecordID    string
}

// ApplicationLine is one invoice allocation within a PostApplication call.
type ApplicationLine struct {
	InvoiceID     string
	AmountApplied money.Amount
}

// Application is the caller's request to post a payment application to an
// ERP (spec.md §4.2). TransactionID doubles as the idempotency key.
type Application struct {
	TransactionID string
	CustomerID    string
	ERPSystem     string
	Applications  []ApplicationLine
	TotalAmount   money.Amount
	Currency      string
}

// PostResult is the ERP's acknowledgement of a posted application.
type PostResult struct {
	ERPTransactionID string
	PostedAt         time.Time
	Duplicate        bool // true when the ERP reported DuplicatePayment and a prior posting was returned
}

// ConnectionStatus is the result of a health probe against one ERP system.
type ConnectionStatus struct {
	OK        bool
	LatencyMS int64
	Version   string
}

// FetchInvoicesResult is the response of a batch invoice fetch.
type FetchInvoicesResult struct {
	Invoices []Invoice
	NotFound []string
}

// Adapter is implemented once per ERP variant (NetSuite, SAP, QuickBooks,
// generic REST). The facade is the only caller; adapters never see
// transaction or matching concerns, only ERP wire semantics.
type Adapter interface {
	ERPSystem() string
	FetchInvoices(ctx context.Context, invoiceIDs []string, customerID string) (FetchInvoicesResult, error)
	PostApplication(ctx context.Context, app Application) (PostResult, error)
	TestConnection(ctx context.Context) (ConnectionStatus, error)
}

// AdapterConfig carries the credentials and endpoint for one configured ERP
// system (spec.md §6 `erp_systems[]`).
type AdapterConfig struct {
	ERPSystem string
	BaseURL   string
	Config    map[string]any
}

// Factory constructs an Adapter for a given configuration. Each ERP variant
// package exposes exactly one Factory.
type Factory interface {
	Kind() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// ErrorKind is the abstract, ERP-agnostic error taxonomy from spec.md §7.
type ErrorKind string

const (
	ErrKindValidation         ErrorKind = "ValidationError"
	ErrKindExtractorUnavail   ErrorKind = "ExtractorUnavailable"
	ErrKindERPTransient       ErrorKind = "ERPTransient"
	ErrKindERPPermanent       ErrorKind = "ERPPermanent"
	ErrKindDuplicatePayment   ErrorKind = "DuplicatePayment"
	ErrKindConcurrencyConflict ErrorKind = "ConcurrencyConflict"
	ErrKindInvariantViolation ErrorKind = "InvariantViolation"
	ErrKindCancelled          ErrorKind = "Cancelled"
)

// Error carries a classified ERP failure up through the facade so the
// Orchestrator can decide retry vs. terminal per spec.md §7's propagation
// policy.
type Error struct {
	Kind    ErrorKind
	ERP     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (k ErrorKind) String() string { return string(k) }

// Retryable reports whether the facade's retry loop should attempt this
// error again (spec.md §7: ERPTransient and ConcurrencyConflict recover via
// retry; everything else is terminal).
func (e *Error) Retryable() bool {
	return e.Kind == ErrKindERPTransient || e.Kind == ErrKindConcurrencyConflict
}

var (
	ErrProviderNotFound = errors.New("erp: adapter not registered for this erp_system")
	ErrInvalidConfig    = errors.New("erp: invalid adapter configuration")
)
