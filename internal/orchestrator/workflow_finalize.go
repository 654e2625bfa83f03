package orchestrator

import (
	"context"

	"github.com/smallbiznis/cashapp/internal/matcher"
	obscontext "github.com/smallbiznis/cashapp/internal/observability/context"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
	"go.uber.org/zap"
)

// fail terminates the workflow with state=Error on an unrecoverable
// infrastructure or business-rule failure (spec.md §4.4 state machine).
func (o *Orchestrator) fail(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction, cause error) error {
	message := cause.Error()
	if updateErr := o.txnSvc.UpdateStatus(ctx, txn.TransactionID, transactiondomain.StatusError, &record.WorkflowID); updateErr != nil {
		o.log.Warn("failed to mark transaction as Error", zap.String("transaction_id", txn.TransactionID), zap.Error(updateErr))
	}
	if _, finalizeErr := o.repo.Finalize(ctx, o.db, record.WorkflowID, orchdomain.StateError, record.MatchResultID, &message); finalizeErr != nil {
		o.log.Warn("failed to persist workflow failure", zap.String("workflow_id", record.WorkflowID), zap.Error(finalizeErr))
	}
	o.appendAudit(ctx, record, txn.TransactionID, "WorkflowFailed", map[string]any{"error": message})
	return cause
}

// finalizeCancelled terminates a cooperatively cancelled workflow, leaving
// any already-posted applications intact (spec.md §4.4 Cancellation).
func (o *Orchestrator) finalizeCancelled(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction) error {
	reason := "Cancelled"
	if updateErr := o.txnSvc.UpdateStatus(ctx, txn.TransactionID, transactiondomain.StatusError, &record.WorkflowID); updateErr != nil {
		o.log.Warn("failed to mark transaction as Error after cancellation", zap.String("transaction_id", txn.TransactionID), zap.Error(updateErr))
	}
	if _, finalizeErr := o.repo.Finalize(ctx, o.db, record.WorkflowID, orchdomain.StateError, record.MatchResultID, &reason); finalizeErr != nil {
		o.log.Warn("failed to persist workflow cancellation", zap.String("workflow_id", record.WorkflowID), zap.Error(finalizeErr))
	}
	o.appendAudit(ctx, record, txn.TransactionID, "WorkflowCancelled", map[string]any{"reason": reason})
	return errCancelled
}

// finalize writes the terminal status implied by the match outcome
// (spec.md §4.4 state machine: match.ok/post.ok -> Matched,
// match.short/over -> PartiallyMatched, match.unmatched -> Unmatched,
// require_review -> RequiresReview).
func (o *Orchestrator) finalize(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction, result matcher.Result, matchResultID int64) error {
	state, txnStatus := terminalStateFor(result)

	if err := o.txnSvc.UpdateStatus(ctx, txn.TransactionID, txnStatus, &record.WorkflowID); err != nil {
		o.log.Warn("failed to set terminal transaction status", zap.String("transaction_id", txn.TransactionID), zap.Error(err))
	}
	if _, err := o.repo.Finalize(ctx, o.db, record.WorkflowID, state, &matchResultID, nil); err != nil {
		o.log.Warn("failed to persist workflow finalization", zap.String("workflow_id", record.WorkflowID), zap.Error(err))
	}
	o.appendAudit(ctx, record, txn.TransactionID, "WorkflowFinalized", map[string]any{
		"state":            string(state),
		"match_result_id":  matchResultID,
		"discrepancy_code": string(result.DiscrepancyCode),
	})
	return nil
}

func terminalStateFor(result matcher.Result) (orchdomain.State, transactiondomain.ProcessingStatus) {
	if result.RequiresHumanReview {
		return orchdomain.StateRequiresReview, transactiondomain.StatusRequiresReview
	}
	switch result.Status {
	case matcher.StatusMatched:
		return orchdomain.StateMatched, transactiondomain.StatusMatched
	case matcher.StatusPartiallyMatched:
		return orchdomain.StatePartiallyMatched, transactiondomain.StatusPartiallyMatched
	default:
		return orchdomain.StateUnmatched, transactiondomain.StatusUnmatched
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, record *orchdomain.WorkflowRecord, transactionID, eventType string, data map[string]any) {
	correlationID := obscontext.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = record.WorkflowID
	}
	if _, err := o.auditSvc.AppendAudit(ctx, eventType, "orchestrator", correlationID, &transactionID, data); err != nil {
		o.log.Warn("failed to append workflow audit event", zap.String("workflow_id", record.WorkflowID), zap.Error(err))
	}
}

// GetStatus polls a workflow's current checkpoint (spec.md §4.4).
func (o *Orchestrator) GetStatus(ctx context.Context, workflowID string) (orchdomain.GetStatusResponse, error) {
	record, err := o.repo.Get(ctx, o.db, workflowID)
	if err != nil {
		return orchdomain.GetStatusResponse{}, err
	}
	return orchdomain.GetStatusResponse{
		WorkflowID:    record.WorkflowID,
		TransactionID: record.TransactionID,
		State:         record.State,
		LastStep:      record.LastStep,
		MatchResultID: record.MatchResultID,
		Error:         record.Error,
	}, nil
}

// Cancel marks a running workflow for cooperative cancellation; it does
// not interrupt an in-flight external call (spec.md §4.4 Cancellation).
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) error {
	record, err := o.repo.Get(ctx, o.db, workflowID)
	if err != nil {
		return err
	}
	if record.State.IsTerminal() {
		return orchdomain.ErrAlreadyTerminal
	}
	updated, err := o.repo.RequestCancel(ctx, o.db, workflowID)
	if err != nil {
		return err
	}
	if !updated {
		return orchdomain.ErrAlreadyTerminal
	}
	return nil
}
