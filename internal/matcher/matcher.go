// Package matcher implements the cascading payment-to-invoice allocation
// algorithm (spec.md §4.3). It is a pure function: no I/O, no clock, fully
// deterministic given its inputs.
package matcher

import (
	"errors"
	"sort"
	"time"

	"github.com/smallbiznis/cashapp/internal/money"
)

// AlgorithmVersion is emitted on every Result so behavior changes are
// attributable and reversible (spec.md §4.3 "Determinism").
const AlgorithmVersion = "matcher-v1"

type Status string

const (
	StatusMatched          Status = "Matched"
	StatusPartiallyMatched Status = "PartiallyMatched"
	StatusUnmatched        Status = "Unmatched"
)

type DiscrepancyCode string

const (
	DiscrepancyShortPayment     DiscrepancyCode = "ShortPayment"
	DiscrepancyOverPayment      DiscrepancyCode = "OverPayment"
	DiscrepancyInvalidInvoice   DiscrepancyCode = "InvalidInvoice"
	DiscrepancyCurrencyMismatch DiscrepancyCode = "CurrencyMismatch"
	DiscrepancyDuplicatePayment DiscrepancyCode = "DuplicatePayment"
	DiscrepancyNone             DiscrepancyCode = "None"
)

// Policy carries every configurable knob from spec.md §4.3's policy table.
type Policy struct {
	AmountTolerancePct     float64
	ShortWriteOffThreshold money.Amount
	AutoApplyCeiling       *money.Amount
	RequireCustomerMatch   bool
	AllowPartialAllocation bool
	PerfectMatchOnly       bool
}

// Payment is the transaction side of the match, trimmed to what the
// algorithm needs.
type Payment struct {
	TransactionID      string
	Amount             money.Amount
	Currency           string
	CustomerIdentifier string
}

// CandidateInvoice is one invoice returned by the ERP Facade's FetchInvoices
// for the extractor's candidate ids.
type CandidateInvoice struct {
	InvoiceID  string
	CustomerID string
	AmountDue  money.Amount
	Currency   string
	DueDate    *time.Time
}

// Allocation is one InvoicePaymentMatch line (spec.md §3).
type Allocation struct {
	InvoiceID     string
	AmountApplied money.Amount
}

// Result mirrors the MatchResult entity (spec.md §3).
type Result struct {
	TransactionID       string
	Status              Status
	UnappliedAmount     money.Amount
	DiscrepancyCode     DiscrepancyCode
	Confidence          float64
	AlgorithmVersion    string
	LogEntry            string
	RequiresHumanReview bool
	Allocations         []Allocation
}

// ErrInvariantViolation is returned when the post-allocation invariants
// (spec.md §4.3) do not hold. This maps to the terminal InvariantViolation
// error kind at the orchestration layer (spec.md §7).
var ErrInvariantViolation = errors.New("matcher: post-allocation invariant violated")

// Match runs the cascading allocation algorithm: the first rule whose
// preconditions hold wins (spec.md §4.3 rules 1-6).
func Match(payment Payment, requestedInvoiceIDs []string, candidates []CandidateInvoice, policy Policy) (Result, error) {
	result := Result{
		TransactionID:    payment.TransactionID,
		AlgorithmVersion: AlgorithmVersion,
	}

	for _, c := range candidates {
		if c.Currency != payment.Currency {
			result.Status = StatusUnmatched
			result.DiscrepancyCode = DiscrepancyCurrencyMismatch
			result.Confidence = 0
			result.UnappliedAmount = payment.Amount
			result.LogEntry = "currency mismatch between payment and candidate invoice"
			return finalize(result, payment, candidates, policy)
		}
	}

	if len(candidates) == 0 {
		result.Status = StatusUnmatched
		result.Confidence = 0
		result.UnappliedAmount = payment.Amount
		if len(requestedInvoiceIDs) == 0 {
			result.DiscrepancyCode = DiscrepancyNone
			result.LogEntry = "no candidate invoice ids extracted"
		} else {
			result.DiscrepancyCode = DiscrepancyInvalidInvoice
			result.LogEntry = "candidate invoice ids did not resolve to any invoice in the ERP"
		}
		return finalize(result, payment, candidates, policy)
	}

	// Rule 2: perfect 1:1.
	var exactMatches []CandidateInvoice
	for _, c := range candidates {
		if c.AmountDue.WithinTolerance(payment.Amount, policy.AmountTolerancePct) {
			exactMatches = append(exactMatches, c)
		}
	}
	if len(exactMatches) == 1 {
		inv := exactMatches[0]
		result.Status = StatusMatched
		result.DiscrepancyCode = DiscrepancyNone
		result.Confidence = 0.99
		result.UnappliedAmount = money.Zero
		result.Allocations = []Allocation{{InvoiceID: inv.InvoiceID, AmountApplied: inv.AmountDue}}
		result.LogEntry = "perfect 1:1 match on " + inv.InvoiceID
		return finalize(result, payment, candidates, policy)
	}

	// Rule 3: perfect 1:N sum-to-amount.
	sum := money.Zero
	for _, c := range candidates {
		sum = sum.Add(c.AmountDue)
	}
	if sum.WithinTolerance(payment.Amount, policy.AmountTolerancePct) {
		allocations := make([]Allocation, 0, len(candidates))
		for _, c := range sortedByInvoiceID(candidates) {
			allocations = append(allocations, Allocation{InvoiceID: c.InvoiceID, AmountApplied: c.AmountDue})
		}
		result.Status = StatusMatched
		result.DiscrepancyCode = DiscrepancyNone
		result.Confidence = 0.95
		result.UnappliedAmount = money.Zero
		result.Allocations = allocations
		result.LogEntry = "perfect 1:N sum-to-amount match across candidates"
		return finalize(result, payment, candidates, policy)
	}

	// Rules 4/5 produce a multi-invoice allocation; when the policy
	// disallows partial allocation across more than one invoice, neither
	// rule applies and the payment falls through to Unmatched.
	if len(candidates) > 1 && !policy.AllowPartialAllocation {
		result.Status = StatusUnmatched
		result.DiscrepancyCode = DiscrepancyInvalidInvoice
		result.Confidence = 0
		result.UnappliedAmount = payment.Amount
		result.LogEntry = "multi-invoice partial allocation disallowed by policy"
		return finalize(result, payment, candidates, policy)
	}

	ordered := sortedByDueDateThenID(candidates)
	remaining := payment.Amount
	allocations := make([]Allocation, 0, len(ordered))
	for _, c := range ordered {
		if remaining.IsZero() {
			break
		}
		applied := c.AmountDue
		if remaining.LessThan(applied) {
			applied = remaining
		}
		if applied.Sign() <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{InvoiceID: c.InvoiceID, AmountApplied: applied})
		remaining = remaining.Sub(applied)
	}

	if remaining.IsZero() {
		// Rule 4: sequential short-payment fill. Rule 3 already ruled out
		// an exact sum match, so reaching here with nothing left over means
		// some invoice in the candidate set received less than its full
		// amount_due (or was skipped entirely).
		result.Status = StatusPartiallyMatched
		result.DiscrepancyCode = DiscrepancyShortPayment
		result.Confidence = 0.85
		result.UnappliedAmount = money.Zero
		result.Allocations = allocations
		result.LogEntry = "sequential oldest-first fill exhausted payment before all candidates were fully paid"
		return finalize(result, payment, candidates, policy)
	}

	// Rule 5: over-payment. Every candidate was paid in full; remaining is
	// the surplus.
	result.Allocations = allocations
	result.UnappliedAmount = remaining
	if remaining.LessThan(policy.ShortWriteOffThreshold) || remaining.Equal(policy.ShortWriteOffThreshold) {
		result.Status = StatusMatched
		result.Confidence = 0.80
	} else {
		result.Status = StatusPartiallyMatched
		result.Confidence = 0.70
	}
	result.DiscrepancyCode = DiscrepancyOverPayment
	result.LogEntry = "payment exceeds total amount due across all candidates"
	return finalize(result, payment, candidates, policy)
}

// finalize applies the review-downgrade policies (require_customer_match,
// auto_apply_ceiling, perfect_match_only) and verifies the post-allocation
// invariants.
func finalize(result Result, payment Payment, candidates []CandidateInvoice, policy Policy) (Result, error) {
	if policy.RequireCustomerMatch {
		matched := false
		if payment.CustomerIdentifier != "" {
			for _, c := range candidates {
				if c.CustomerID == payment.CustomerIdentifier {
					matched = true
					break
				}
			}
		}
		if !matched {
			result.RequiresHumanReview = true
		}
	}

	if policy.AutoApplyCeiling != nil && payment.Amount.GreaterThan(*policy.AutoApplyCeiling) {
		result.RequiresHumanReview = true
	}

	// perfect_match_only (spec.md §6): only rule 2 (perfect 1:1) or rule 3
	// (perfect 1:N sum-to-amount) qualify for autonomous posting; both are
	// the only rules that produce a Matched result with no discrepancy.
	// Everything else - short payment, over payment, unmatched - requires
	// review under this policy.
	if policy.PerfectMatchOnly && !(result.Status == StatusMatched && result.DiscrepancyCode == DiscrepancyNone) {
		result.RequiresHumanReview = true
	}

	if err := verifyInvariants(result, payment, candidates); err != nil {
		return Result{}, err
	}
	return result, nil
}

func verifyInvariants(result Result, payment Payment, candidates []CandidateInvoice) error {
	amountDueByID := make(map[string]money.Amount, len(candidates))
	for _, c := range candidates {
		amountDueByID[c.InvoiceID] = c.AmountDue
	}

	sum := money.Zero
	seen := map[string]bool{}
	for _, alloc := range result.Allocations {
		if alloc.AmountApplied.Sign() <= 0 {
			return ErrInvariantViolation
		}
		if seen[alloc.InvoiceID] {
			return ErrInvariantViolation
		}
		if due, ok := amountDueByID[alloc.InvoiceID]; ok && alloc.AmountApplied.GreaterThan(due) {
			return ErrInvariantViolation
		}
		seen[alloc.InvoiceID] = true
		sum = sum.Add(alloc.AmountApplied)
	}
	if !sum.Add(result.UnappliedAmount).Equal(payment.Amount) {
		return ErrInvariantViolation
	}
	return nil
}

func sortedByInvoiceID(candidates []CandidateInvoice) []CandidateInvoice {
	sorted := append([]CandidateInvoice(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].InvoiceID < sorted[j].InvoiceID })
	return sorted
}

func sortedByDueDateThenID(candidates []CandidateInvoice) []CandidateInvoice {
	sorted := append([]CandidateInvoice(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return a.InvoiceID < b.InvoiceID
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		case !(*a.DueDate).Equal(*b.DueDate):
			return (*a.DueDate).Before(*b.DueDate)
		default:
			return a.InvoiceID < b.InvoiceID
		}
	})
	return sorted
}
