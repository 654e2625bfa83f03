// Package orchestrator drives the durable per-transaction workflow
// (spec.md §4.4): Claim -> Extract -> FetchInvoices -> Match -> branch ->
// PostApplication -> Communicate -> Finalize.
package orchestrator

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/internal/clock"
	communicationdomain "github.com/smallbiznis/cashapp/internal/communication/domain"
	"github.com/smallbiznis/cashapp/internal/communicator/domain"
	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/erp"
	erpdomain "github.com/smallbiznis/cashapp/internal/erp/domain"
	extractordomain "github.com/smallbiznis/cashapp/internal/extractor/domain"
	"github.com/smallbiznis/cashapp/internal/matcher"
	matchresultdomain "github.com/smallbiznis/cashapp/internal/matchresult/domain"
	obscontext "github.com/smallbiznis/cashapp/internal/observability/context"
	obsmetrics "github.com/smallbiznis/cashapp/internal/observability/metrics"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Config          config.Config
	Clock           clock.Clock
	GenID           *snowflake.Node
	Repo            orchdomain.Repository
	TransactionSvc  transactiondomain.Service
	ExtractorSvc    extractordomain.Service
	ERPFacade       erp.FacadeService
	MatchResultSvc  matchresultdomain.Service
	CommunicationSvc communicationdomain.Service
	CommunicatorSvc domain.Service
	AuditSvc        auditdomain.Service
	Metrics         *obsmetrics.Metrics
}

// Orchestrator implements orchdomain.Service, running each claimed
// transaction's workflow to completion (or to its next durable
// checkpoint) inline within StartWorkflow, the in-process analogue of the
// reviewed repo's scheduler runJob loop (spec.md §4.4).
type Orchestrator struct {
	db     *gorm.DB
	log    *zap.Logger
	cfg    config.WorkflowConfig
	matcherCfg config.MatcherConfig
	clock  clock.Clock
	genID  *snowflake.Node
	repo   orchdomain.Repository
	txnSvc transactiondomain.Service
	extractorSvc extractordomain.Service
	erpFacade    erp.FacadeService
	matchResultSvc matchresultdomain.Service
	communicationSvc communicationdomain.Service
	communicatorSvc  domain.Service
	auditSvc         auditdomain.Service
	metrics          *obsmetrics.Metrics

	accountLocks *keyedLock
	gate         *concurrencyGate
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		db:               p.DB,
		log:              p.Log.Named("orchestrator"),
		cfg:              p.Config.Workflow,
		matcherCfg:       p.Config.Matcher,
		clock:            p.Clock,
		genID:            p.GenID,
		repo:             p.Repo,
		txnSvc:           p.TransactionSvc,
		extractorSvc:     p.ExtractorSvc,
		erpFacade:        p.ERPFacade,
		matchResultSvc:   p.MatchResultSvc,
		communicationSvc: p.CommunicationSvc,
		communicatorSvc:  p.CommunicatorSvc,
		auditSvc:         p.AuditSvc,
		metrics:          p.Metrics,
		accountLocks:     newKeyedLock(),
		gate:             newConcurrencyGate(p.Config.Workflow.MaxConcurrentTransactions),
	}
}

var _ orchdomain.Service = (*Orchestrator)(nil)

var errCancelled = errors.New("orchestrator: workflow cancelled")

// StartWorkflow claims the transaction (idempotent on transaction_id) and
// drives its workflow to a terminal state or its cancellation point,
// serialized per source_account_ref and bounded by the global concurrency
// gate (spec.md §4.4).
func (o *Orchestrator) StartWorkflow(ctx context.Context, req orchdomain.StartWorkflowRequest) (orchdomain.StartWorkflowResponse, error) {
	if req.TransactionID == "" {
		return orchdomain.StartWorkflowResponse{}, orchdomain.ErrInvalidTransaction
	}

	existing, err := o.repo.GetByTransactionID(ctx, o.db, req.TransactionID)
	if err != nil && !errors.Is(err, orchdomain.ErrNotFound) {
		return orchdomain.StartWorkflowResponse{}, err
	}
	if existing != nil {
		return orchdomain.StartWorkflowResponse{WorkflowID: existing.WorkflowID, Claimed: false}, nil
	}

	txn, err := o.txnSvc.Get(ctx, req.TransactionID)
	if err != nil {
		return orchdomain.StartWorkflowResponse{}, err
	}

	if err := o.gate.acquire(); err != nil {
		return orchdomain.StartWorkflowResponse{}, err
	}
	defer o.gate.release()

	o.metrics.RecordWorkflowStarted(ctx, txn.SourceAccountRef)

	erpSystem := req.ERPSystem
	if erpSystem == "" {
		erpSystem = o.cfg.DefaultERPSystem
	}

	workflowID := o.genID.Generate().String()
	now := o.clock.Now()
	record := &orchdomain.WorkflowRecord{
		WorkflowID:    workflowID,
		TransactionID: req.TransactionID,
		ERPSystem:     erpSystem,
		State:         orchdomain.StatePending,
		LastStep:      "",
		StartedAt:     now,
		DeadlineAt:    now.Add(o.workflowTimeout()),
	}
	if err := o.repo.Create(ctx, o.db, record); err != nil {
		return orchdomain.StartWorkflowResponse{}, err
	}

	ctx = obscontext.WithCorrelationID(ctx, workflowID)
	ctx = obscontext.WithTransactionID(ctx, req.TransactionID)

	if err := o.withAccountLock(txn.SourceAccountRef, func() error {
		return o.run(ctx, record, txn)
	}); err != nil {
		o.log.Error("workflow run failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}

	return orchdomain.StartWorkflowResponse{WorkflowID: workflowID, Claimed: true}, nil
}

func (o *Orchestrator) workflowTimeout() time.Duration {
	if o.cfg.WorkflowTimeout <= 0 {
		return 10 * time.Minute
	}
	return o.cfg.WorkflowTimeout
}

// run executes every durable step in sequence, persisting the checkpoint
// after each one. A step's context.WithTimeout mirrors the reviewed
// repo's runJob step-timeout idiom (spec.md §4.4).
func (o *Orchestrator) run(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction) error {
	metrics := obsmetrics.Workflow()
	start := o.clock.Now()
	defer func() { metrics.ObserveJobDuration("workflow", time.Since(start)) }()

	if err := o.txnSvc.UpdateStatus(ctx, txn.TransactionID, transactiondomain.StatusProcessing, &record.WorkflowID); err != nil {
		return o.fail(ctx, record, txn, err)
	}
	o.advance(ctx, record, orchdomain.StepClaimed, orchdomain.StateProcessing)

	if o.isCancelled(ctx, record) {
		return o.finalizeCancelled(ctx, record, txn)
	}

	extractResult, err := o.stepExtract(ctx, txn)
	if err != nil && !errors.Is(err, extractordomain.ErrExtractorUnavailable) {
		return o.fail(ctx, record, txn, err)
	}
	o.advance(ctx, record, orchdomain.StepExtracted, orchdomain.StateProcessing)

	if o.isCancelled(ctx, record) {
		return o.finalizeCancelled(ctx, record, txn)
	}

	fetchResult, err := o.stepFetchInvoices(ctx, record, txn, extractResult.InvoiceIDs)
	if err != nil {
		return o.fail(ctx, record, txn, err)
	}
	o.advance(ctx, record, orchdomain.StepFetchedInvoices, orchdomain.StateProcessing)

	if o.isCancelled(ctx, record) {
		return o.finalizeCancelled(ctx, record, txn)
	}

	matchStart := o.clock.Now()
	matchResult, err := o.stepMatch(txn, extractResult.InvoiceIDs, fetchResult.Invoices)
	if err != nil {
		return o.fail(ctx, record, txn, err)
	}
	matchResultID, err := o.recordMatch(ctx, txn, matchResult, o.clock.Now().Sub(matchStart))
	if err != nil {
		o.log.Warn("failed to record match result", zap.Error(err))
	}
	record.MatchResultID = &matchResultID
	o.advance(ctx, record, orchdomain.StepMatched, orchdomain.StateProcessing)

	if o.isCancelled(ctx, record) {
		return o.finalizeCancelled(ctx, record, txn)
	}

	if err := o.stepBranch(ctx, record, txn, matchResult); err != nil {
		return o.fail(ctx, record, txn, err)
	}

	return o.finalize(ctx, record, txn, matchResult, matchResultID)
}

func (o *Orchestrator) advance(ctx context.Context, record *orchdomain.WorkflowRecord, step orchdomain.Step, state orchdomain.State) {
	from := record.LastStep
	if _, err := o.repo.AdvanceStep(ctx, o.db, record.WorkflowID, from, step, state); err != nil {
		o.log.Warn("failed to persist workflow checkpoint", zap.String("workflow_id", record.WorkflowID), zap.String("step", string(step)), zap.Error(err))
	}
	obsmetrics.Workflow().IncWorkflowTransition(string(record.State), string(state))
	record.LastStep = step
	record.State = state
}

func (o *Orchestrator) isCancelled(ctx context.Context, record *orchdomain.WorkflowRecord) bool {
	current, err := o.repo.Get(ctx, o.db, record.WorkflowID)
	if err != nil {
		return false
	}
	return current.CancelRequested
}

func (o *Orchestrator) stepExtract(ctx context.Context, txn *transactiondomain.PaymentTransaction) (extractordomain.ExtractResult, error) {
	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientID := ""
	if txn.CustomerIdentifier != nil {
		clientID = *txn.CustomerIdentifier
	}
	return o.extractorSvc.Extract(extractCtx, extractordomain.ExtractRequest{
		DocumentURIs:   txn.AssociatedDocumentURIs,
		RemittanceText: txn.RawRemittanceData,
		ClientID:       clientID,
	})
}

func (o *Orchestrator) stepFetchInvoices(ctx context.Context, record *orchdomain.WorkflowRecord, txn *transactiondomain.PaymentTransaction, invoiceIDs []string) (erpdomain.FetchInvoicesResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	customerID := ""
	if txn.CustomerIdentifier != nil {
		customerID = *txn.CustomerIdentifier
	}
	return o.erpFacade.FetchInvoices(fetchCtx, invoiceIDs, record.ERPSystem, customerID)
}

func (o *Orchestrator) stepMatch(txn *transactiondomain.PaymentTransaction, requestedIDs []string, invoices []erpdomain.Invoice) (matcher.Result, error) {
	candidates := make([]matcher.CandidateInvoice, 0, len(invoices))
	for _, inv := range invoices {
		candidates = append(candidates, matcher.CandidateInvoice{
			InvoiceID:  inv.InvoiceID,
			CustomerID: inv.CustomerID,
			AmountDue:  inv.AmountDue,
			Currency:   inv.Currency,
			DueDate:    inv.DueDate,
		})
	}

	customerIdentifier := ""
	if txn.CustomerIdentifier != nil {
		customerIdentifier = *txn.CustomerIdentifier
	}
	payment := matcher.Payment{
		TransactionID:      txn.TransactionID,
		Amount:             txn.Amount,
		Currency:           txn.Currency,
		CustomerIdentifier: customerIdentifier,
	}

	return matcher.Match(payment, requestedIDs, candidates, o.policyFromConfig())
}
