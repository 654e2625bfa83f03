package orchestrator

import (
	"context"
	"errors"

	"github.com/smallbiznis/cashapp/internal/matcher"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
	"go.uber.org/zap"
)

// ReconcileStuckBatchSize bounds a single sweep pass, mirroring the
// reviewed repo's per-job batch ceilings (spec.md §4.4 crash recovery).
const ReconcileStuckBatchSize = 50

// ReconcileStuckWorkflows resumes every non-terminal workflow whose
// deadline has passed. A workflow that crashed at or after StepPosted has
// already posted the application, so it is finalized directly from its
// recorded match result; replaying Claim onward for it would re-post to the
// ERP. A workflow stopped at StepPosted may not have dispatched its
// communication yet, and finalizing does not dispatch it. Only a workflow
// that crashed before Post is replayed
// from the top (spec.md §7 "those past the Post step are Finalized; those
// before it are Restarted from Claim").
func (o *Orchestrator) ReconcileStuckWorkflows(ctx context.Context) error {
	now := o.clock.Now()
	var sweepErr error

	for {
		stuck, err := o.repo.ListStuck(ctx, o.db, now, ReconcileStuckBatchSize)
		if err != nil {
			return errors.Join(sweepErr, err)
		}
		if len(stuck) == 0 {
			break
		}

		for _, record := range stuck {
			if err := o.resumeStuckWorkflow(ctx, record); err != nil {
				sweepErr = errors.Join(sweepErr, err)
				o.log.Error("failed to resume stuck workflow",
					zap.String("workflow_id", record.WorkflowID),
					zap.String("last_step", string(record.LastStep)),
					zap.Error(err),
				)
			}
		}

		if len(stuck) < ReconcileStuckBatchSize {
			break
		}
	}

	return sweepErr
}

func (o *Orchestrator) resumeStuckWorkflow(ctx context.Context, record *orchdomain.WorkflowRecord) error {
	txn, err := o.txnSvc.Get(ctx, record.TransactionID)
	if err != nil {
		return err
	}

	if err := o.gate.acquire(); err != nil {
		return err
	}
	defer o.gate.release()

	if pastPost(record.LastStep) {
		return o.withAccountLock(txn.SourceAccountRef, func() error {
			return o.finalizeStuck(ctx, record, txn)
		})
	}

	return o.withAccountLock(txn.SourceAccountRef, func() error {
		return o.run(ctx, record, txn)
	})
}

// pastPost reports whether a workflow's last checkpoint is StepPosted or
// later, meaning PostApplication already ran and must not be repeated by a
// replay.
func pastPost(step orchdomain.Step) bool {
	switch step {
	case orchdomain.StepPosted, orchdomain.StepCommunicated, orchdomain.StepFinalized:
		return true
	default:
		return false
	}
}

// finalizeStuck completes a crashed workflow that already posted its
// application, using the match result recorded before the crash rather than
// re-running the matcher or its downstream side effects; a communication
// that was not dispatched before the crash is not dispatched here.
func (o *Orchestrator) finalizeStuck(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction) error {
	if record.MatchResultID == nil {
		return o.fail(ctx, record, txn, errors.New("orchestrator: workflow past Post has no recorded match_result_id"))
	}

	stored, _, err := o.matchResultSvc.Get(ctx, *record.MatchResultID)
	if err != nil {
		return o.fail(ctx, record, txn, err)
	}

	result := matcher.Result{
		TransactionID:       stored.TransactionID,
		Status:              matcher.Status(stored.Status),
		DiscrepancyCode:     matcher.DiscrepancyCode(stored.DiscrepancyCode),
		Confidence:          stored.Confidence,
		AlgorithmVersion:    stored.AlgorithmVersion,
		LogEntry:            stored.LogEntry,
		RequiresHumanReview: stored.RequiresHumanReview,
	}

	return o.finalize(ctx, record, txn, result, *record.MatchResultID)
}
