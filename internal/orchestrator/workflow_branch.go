package orchestrator

import (
	"context"
	"time"

	erpdomain "github.com/smallbiznis/cashapp/internal/erp/domain"
	"github.com/smallbiznis/cashapp/internal/matcher"
	matchresultdomain "github.com/smallbiznis/cashapp/internal/matchresult/domain"
	"github.com/smallbiznis/cashapp/internal/money"
	communicatordomain "github.com/smallbiznis/cashapp/internal/communicator/domain"
	obsmetrics "github.com/smallbiznis/cashapp/internal/observability/metrics"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
	"go.uber.org/zap"
)

// policyFromConfig translates config.MatcherConfig into matcher.Policy,
// tolerating an unset write-off threshold/ceiling (spec.md §6 defaults).
func (o *Orchestrator) policyFromConfig() matcher.Policy {
	writeOff, err := money.Parse(o.matcherCfg.ShortWriteOffThreshold)
	if err != nil {
		writeOff = money.Zero
	}

	var ceiling *money.Amount
	if raw := o.matcherCfg.AutoApplyCeiling; raw != "" {
		if amount, err := money.Parse(raw); err == nil {
			ceiling = &amount
		}
	}

	return matcher.Policy{
		AmountTolerancePct:     o.matcherCfg.AmountTolerancePct,
		ShortWriteOffThreshold: writeOff,
		AutoApplyCeiling:       ceiling,
		RequireCustomerMatch:   o.matcherCfg.RequireCustomerMatch,
		AllowPartialAllocation: o.matcherCfg.AllowPartialAllocation,
		PerfectMatchOnly:       o.matcherCfg.PerfectMatchOnly,
	}
}

// stepBranch posts the application (when the outcome calls for it) and
// dispatches the appropriate communication, per the branch table in
// spec.md §4.4.
func (o *Orchestrator) stepBranch(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction, result matcher.Result) error {
	shouldPost := o.cfg.EnableAutonomousERPUpdates &&
		(result.Status == matcher.StatusMatched || result.Status == matcher.StatusPartiallyMatched) &&
		!result.RequiresHumanReview

	if shouldPost {
		if err := o.stepPostApplication(ctx, record, txn, result); err != nil {
			return err
		}
		o.advance(ctx, record, orchdomain.StepPosted, orchdomain.StateProcessing)
	}

	kind, recipient, template := o.communicationFor(txn, result)
	if kind == "" {
		o.advance(ctx, record, orchdomain.StepCommunicated, orchdomain.StateProcessing)
		return nil
	}

	if err := o.stepCommunicate(ctx, record, txn, result, kind, recipient, template); err != nil {
		o.log.Warn("communication dispatch failed", zap.String("workflow_id", record.WorkflowID), zap.Error(err))
	}
	o.advance(ctx, record, orchdomain.StepCommunicated, orchdomain.StateProcessing)
	return nil
}

// communicationFor decides which communication, if any, accompanies the
// match outcome (spec.md §4.4 branch table).
func (o *Orchestrator) communicationFor(txn *transactiondomain.PaymentTransaction, result matcher.Result) (kind communicatordomain.Kind, recipient, template string) {
	recipient = o.recipientFor(txn)
	switch {
	case result.Status == matcher.StatusMatched && !result.RequiresHumanReview:
		return communicatordomain.KindConfirmation, recipient, "payment-confirmation"
	case result.Status == matcher.StatusPartiallyMatched && result.DiscrepancyCode == matcher.DiscrepancyShortPayment:
		return communicatordomain.KindCustomerClarification, recipient, "short-payment-clarification"
	case result.Status == matcher.StatusPartiallyMatched && result.DiscrepancyCode == matcher.DiscrepancyOverPayment:
		return communicatordomain.KindInternalAlert, o.internalAlertRecipient(), "over-payment-alert"
	case result.Status == matcher.StatusUnmatched || result.RequiresHumanReview:
		return communicatordomain.KindInternalAlert, o.internalAlertRecipient(), "requires-review-alert"
	default:
		return "", "", ""
	}
}

func (o *Orchestrator) recipientFor(txn *transactiondomain.PaymentTransaction) string {
	if txn.CustomerIdentifier != nil && *txn.CustomerIdentifier != "" {
		return *txn.CustomerIdentifier
	}
	return o.internalAlertRecipient()
}

func (o *Orchestrator) internalAlertRecipient() string {
	return "ar-team@internal"
}

func (o *Orchestrator) stepPostApplication(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction, result matcher.Result) error {
	postCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	lines := make([]erpdomain.ApplicationLine, 0, len(result.Allocations))
	for _, alloc := range result.Allocations {
		lines = append(lines, erpdomain.ApplicationLine{InvoiceID: alloc.InvoiceID, AmountApplied: alloc.AmountApplied})
	}

	customerID := ""
	if txn.CustomerIdentifier != nil {
		customerID = *txn.CustomerIdentifier
	}

	_, err := o.erpFacade.PostApplication(postCtx, erpdomain.Application{
		TransactionID: txn.TransactionID,
		CustomerID:    customerID,
		ERPSystem:     record.ERPSystem,
		Applications:  lines,
		TotalAmount:   txn.Amount,
		Currency:      txn.Currency,
	})
	if err != nil {
		obsmetrics.Workflow().IncWorkflowError("post_application", err)
	}
	return err
}

func (o *Orchestrator) stepCommunicate(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction, result matcher.Result, kind communicatordomain.Kind, recipient, template string) error {
	commCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	data := map[string]any{
		"transaction_id":   txn.TransactionID,
		"status":           string(result.Status),
		"discrepancy_code": string(result.DiscrepancyCode),
		"unapplied_amount": result.UnappliedAmount.String(),
	}

	dispatchResult, err := o.communicatorSvc.Dispatch(commCtx, communicatordomain.Event{
		TransactionID: &txn.TransactionID,
		Kind:          kind,
		Recipient:     recipient,
		TemplateName:  template,
		Data:          data,
	})

	status := communicationdomainStatus(dispatchResult.Status)
	var deliveryErr *string
	if err != nil {
		msg := err.Error()
		deliveryErr = &msg
	}

	if _, recordErr := o.communicationSvc.RecordCommunication(ctx, communicationRecordRequest(txn.TransactionID, kind, template, recipient, data, status, deliveryErr)); recordErr != nil {
		o.log.Warn("failed to record communication event", zap.Error(recordErr))
	}

	return err
}

func (o *Orchestrator) recordMatch(ctx context.Context, txn *transactiondomain.PaymentTransaction, result matcher.Result, elapsed time.Duration) (int64, error) {
	allocations := make([]matchresultdomain.RecordMatchAllocation, 0, len(result.Allocations))
	for _, alloc := range result.Allocations {
		allocations = append(allocations, matchresultdomain.RecordMatchAllocation{
			InvoiceID:     alloc.InvoiceID,
			AmountApplied: alloc.AmountApplied.String(),
		})
	}

	resp, err := o.matchResultSvc.RecordMatch(ctx, matchresultdomain.RecordMatchServiceRequest{
		TransactionID:       txn.TransactionID,
		Status:              matchresultdomain.Status(result.Status),
		UnappliedAmount:     result.UnappliedAmount.String(),
		DiscrepancyCode:     matchresultdomain.DiscrepancyCode(result.DiscrepancyCode),
		Confidence:          result.Confidence,
		AlgorithmVersion:    result.AlgorithmVersion,
		LogEntry:            result.LogEntry,
		RequiresHumanReview: result.RequiresHumanReview,
		ProcessingTimeMS:    elapsed.Milliseconds(),
		Allocations:         allocations,
	})
	if err != nil {
		return 0, err
	}
	o.metrics.RecordMatchOutcome(ctx, string(result.Status), string(result.DiscrepancyCode))
	return resp.MatchResultID, nil
}
