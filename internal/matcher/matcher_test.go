package matcher

import (
	"testing"
	"time"

	"github.com/smallbiznis/cashapp/internal/money"
)

func defaultPolicy() Policy {
	return Policy{
		AmountTolerancePct:     0.01,
		ShortWriteOffThreshold: money.New(5, 0),
		AllowPartialAllocation: true,
	}
}

func mustMatch(t *testing.T, payment Payment, requested []string, candidates []CandidateInvoice, policy Policy) Result {
	t.Helper()
	result, err := Match(payment, requested, candidates, policy)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	return result
}

func TestPerfectOneToOneMatch(t *testing.T) {
	payment := Payment{TransactionID: "txn-1", Amount: money.New(100, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, defaultPolicy())

	if result.Status != StatusMatched {
		t.Fatalf("expected Matched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyNone {
		t.Fatalf("expected None, got %s", result.DiscrepancyCode)
	}
	if !result.UnappliedAmount.IsZero() {
		t.Fatalf("expected zero unapplied, got %s", result.UnappliedAmount)
	}
	if len(result.Allocations) != 1 || result.Allocations[0].InvoiceID != "inv-1" {
		t.Fatalf("unexpected allocations: %+v", result.Allocations)
	}
}

func TestPerfectOneToManySumMatch(t *testing.T) {
	payment := Payment{TransactionID: "txn-2", Amount: money.New(150, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-b", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
		{InvoiceID: "inv-a", CustomerID: "cust-1", AmountDue: money.New(50, 0), Currency: "USD"},
	}
	result := mustMatch(t, payment, []string{"inv-a", "inv-b"}, candidates, defaultPolicy())

	if result.Status != StatusMatched {
		t.Fatalf("expected Matched, got %s", result.Status)
	}
	if len(result.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(result.Allocations))
	}
	if result.Allocations[0].InvoiceID != "inv-a" {
		t.Fatalf("expected allocations sorted by invoice_id, got %+v", result.Allocations)
	}
}

func TestShortPaymentSequentialFill(t *testing.T) {
	payment := Payment{TransactionID: "txn-3", Amount: money.New(80, 0), Currency: "USD"}
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-new", CustomerID: "cust-1", AmountDue: money.New(60, 0), Currency: "USD", DueDate: &newer},
		{InvoiceID: "inv-old", CustomerID: "cust-1", AmountDue: money.New(60, 0), Currency: "USD", DueDate: &older},
	}
	result := mustMatch(t, payment, []string{"inv-old", "inv-new"}, candidates, defaultPolicy())

	if result.Status != StatusPartiallyMatched {
		t.Fatalf("expected PartiallyMatched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyShortPayment {
		t.Fatalf("expected ShortPayment, got %s", result.DiscrepancyCode)
	}
	if !result.UnappliedAmount.IsZero() {
		t.Fatalf("expected zero unapplied on a short fill, got %s", result.UnappliedAmount)
	}
	if len(result.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %+v", result.Allocations)
	}
	if result.Allocations[0].InvoiceID != "inv-old" {
		t.Fatalf("expected oldest due date filled first, got %+v", result.Allocations)
	}
	if !result.Allocations[1].AmountApplied.Equal(money.New(20, 0)) {
		t.Fatalf("expected second invoice partially filled for 20, got %s", result.Allocations[1].AmountApplied)
	}
}

func TestOverPaymentWithinWriteOffThresholdIsMatched(t *testing.T) {
	payment := Payment{TransactionID: "txn-4", Amount: money.New(103, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.ShortWriteOffThreshold = money.New(5, 0)
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if result.Status != StatusMatched {
		t.Fatalf("expected Matched (within write-off threshold), got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyOverPayment {
		t.Fatalf("expected OverPayment, got %s", result.DiscrepancyCode)
	}
	if !result.UnappliedAmount.Equal(money.New(3, 0)) {
		t.Fatalf("expected unapplied 3, got %s", result.UnappliedAmount)
	}
}

func TestOverPaymentBeyondWriteOffThresholdIsPartiallyMatched(t *testing.T) {
	payment := Payment{TransactionID: "txn-5", Amount: money.New(150, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.ShortWriteOffThreshold = money.New(5, 0)
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if result.Status != StatusPartiallyMatched {
		t.Fatalf("expected PartiallyMatched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyOverPayment {
		t.Fatalf("expected OverPayment, got %s", result.DiscrepancyCode)
	}
	if !result.UnappliedAmount.Equal(money.New(50, 0)) {
		t.Fatalf("expected unapplied 50, got %s", result.UnappliedAmount)
	}
}

func TestCurrencyMismatchIsUnmatched(t *testing.T) {
	payment := Payment{TransactionID: "txn-6", Amount: money.New(100, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "EUR"},
	}
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, defaultPolicy())

	if result.Status != StatusUnmatched {
		t.Fatalf("expected Unmatched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyCurrencyMismatch {
		t.Fatalf("expected CurrencyMismatch, got %s", result.DiscrepancyCode)
	}
	if result.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", result.Confidence)
	}
}

func TestNoCandidateIDsIsDiscrepancyNone(t *testing.T) {
	payment := Payment{TransactionID: "txn-7", Amount: money.New(100, 0), Currency: "USD"}
	result := mustMatch(t, payment, nil, nil, defaultPolicy())

	if result.Status != StatusUnmatched {
		t.Fatalf("expected Unmatched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyNone {
		t.Fatalf("expected None, got %s", result.DiscrepancyCode)
	}
}

func TestRequestedIDsNotFoundIsInvalidInvoice(t *testing.T) {
	payment := Payment{TransactionID: "txn-8", Amount: money.New(100, 0), Currency: "USD"}
	result := mustMatch(t, payment, []string{"inv-ghost"}, nil, defaultPolicy())

	if result.Status != StatusUnmatched {
		t.Fatalf("expected Unmatched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyInvalidInvoice {
		t.Fatalf("expected InvalidInvoice, got %s", result.DiscrepancyCode)
	}
}

func TestDisallowPartialAllocationGatesMultiInvoice(t *testing.T) {
	payment := Payment{TransactionID: "txn-9", Amount: money.New(80, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(60, 0), Currency: "USD"},
		{InvoiceID: "inv-2", CustomerID: "cust-1", AmountDue: money.New(60, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.AllowPartialAllocation = false
	result := mustMatch(t, payment, []string{"inv-1", "inv-2"}, candidates, policy)

	if result.Status != StatusUnmatched {
		t.Fatalf("expected Unmatched, got %s", result.Status)
	}
	if result.DiscrepancyCode != DiscrepancyInvalidInvoice {
		t.Fatalf("expected InvalidInvoice, got %s", result.DiscrepancyCode)
	}
	if len(result.Allocations) != 0 {
		t.Fatalf("expected no allocations, got %+v", result.Allocations)
	}
}

func TestRequireCustomerMatchFlagsReviewOnMismatch(t *testing.T) {
	payment := Payment{TransactionID: "txn-10", Amount: money.New(100, 0), Currency: "USD", CustomerIdentifier: "cust-other"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.RequireCustomerMatch = true
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if !result.RequiresHumanReview {
		t.Fatalf("expected RequiresHumanReview true on customer mismatch")
	}
	if result.Status != StatusMatched {
		t.Fatalf("expected allocation to still succeed, got %s", result.Status)
	}
}

func TestRequireCustomerMatchPassesWhenIdentifiersAgree(t *testing.T) {
	payment := Payment{TransactionID: "txn-11", Amount: money.New(100, 0), Currency: "USD", CustomerIdentifier: "cust-1"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.RequireCustomerMatch = true
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if result.RequiresHumanReview {
		t.Fatalf("expected RequiresHumanReview false when customer identifiers agree")
	}
}

func TestAutoApplyCeilingFlagsReviewAboveLimit(t *testing.T) {
	payment := Payment{TransactionID: "txn-12", Amount: money.New(10000, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(10000, 0), Currency: "USD"},
	}
	ceiling := money.New(5000, 0)
	policy := defaultPolicy()
	policy.AutoApplyCeiling = &ceiling
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if !result.RequiresHumanReview {
		t.Fatalf("expected RequiresHumanReview true above auto_apply_ceiling")
	}
}

func TestAutoApplyCeilingDoesNotFlagBelowLimit(t *testing.T) {
	payment := Payment{TransactionID: "txn-13", Amount: money.New(100, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	ceiling := money.New(5000, 0)
	policy := defaultPolicy()
	policy.AutoApplyCeiling = &ceiling
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if result.RequiresHumanReview {
		t.Fatalf("expected RequiresHumanReview false below auto_apply_ceiling")
	}
}

func TestPerfectMatchOnlyPassesRuleTwo(t *testing.T) {
	payment := Payment{TransactionID: "txn-perf-1", Amount: money.New(100, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.PerfectMatchOnly = true
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if result.RequiresHumanReview {
		t.Fatalf("expected perfect 1:1 match to bypass review under perfect_match_only")
	}
}

func TestPerfectMatchOnlyPassesRuleThree(t *testing.T) {
	payment := Payment{TransactionID: "txn-perf-2", Amount: money.New(150, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
		{InvoiceID: "inv-2", CustomerID: "cust-1", AmountDue: money.New(50, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.PerfectMatchOnly = true
	result := mustMatch(t, payment, []string{"inv-1", "inv-2"}, candidates, policy)

	if result.RequiresHumanReview {
		t.Fatalf("expected perfect 1:N sum match to bypass review under perfect_match_only")
	}
}

func TestPerfectMatchOnlyFlagsShortPayment(t *testing.T) {
	payment := Payment{TransactionID: "txn-perf-3", Amount: money.New(60, 0), Currency: "USD"}
	candidates := []CandidateInvoice{
		{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"},
	}
	policy := defaultPolicy()
	policy.PerfectMatchOnly = true
	result := mustMatch(t, payment, []string{"inv-1"}, candidates, policy)

	if !result.RequiresHumanReview {
		t.Fatalf("expected short payment (rule 4) to require review under perfect_match_only")
	}
}

func TestConfidenceOrderingAcrossRules(t *testing.T) {
	exact := mustMatch(t,
		Payment{TransactionID: "txn-14", Amount: money.New(100, 0), Currency: "USD"},
		[]string{"inv-1"},
		[]CandidateInvoice{{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"}},
		defaultPolicy(),
	)
	short := mustMatch(t,
		Payment{TransactionID: "txn-15", Amount: money.New(50, 0), Currency: "USD"},
		[]string{"inv-1"},
		[]CandidateInvoice{{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"}},
		defaultPolicy(),
	)
	unmatched := mustMatch(t,
		Payment{TransactionID: "txn-16", Amount: money.New(100, 0), Currency: "USD"},
		nil, nil, defaultPolicy(),
	)

	if !(exact.Confidence > short.Confidence && short.Confidence > unmatched.Confidence) {
		t.Fatalf("expected exact > short > unmatched confidence, got %f, %f, %f", exact.Confidence, short.Confidence, unmatched.Confidence)
	}
}

func TestAlgorithmVersionIsStamped(t *testing.T) {
	result := mustMatch(t,
		Payment{TransactionID: "txn-17", Amount: money.New(100, 0), Currency: "USD"},
		[]string{"inv-1"},
		[]CandidateInvoice{{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: money.New(100, 0), Currency: "USD"}},
		defaultPolicy(),
	)
	if result.AlgorithmVersion != AlgorithmVersion {
		t.Fatalf("expected stamped algorithm version, got %q", result.AlgorithmVersion)
	}
}
