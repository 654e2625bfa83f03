package orchestrator

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/internal/clock"
	communicationdomain "github.com/smallbiznis/cashapp/internal/communication/domain"
	communicationrepository "github.com/smallbiznis/cashapp/internal/communication/repository"
	communicationservice "github.com/smallbiznis/cashapp/internal/communication/service"
	communicatordomain "github.com/smallbiznis/cashapp/internal/communicator/domain"
	"github.com/smallbiznis/cashapp/internal/config"
	erpdomain "github.com/smallbiznis/cashapp/internal/erp/domain"
	extractordomain "github.com/smallbiznis/cashapp/internal/extractor/domain"
	matchresultdomain "github.com/smallbiznis/cashapp/internal/matchresult/domain"
	matchresultrepository "github.com/smallbiznis/cashapp/internal/matchresult/repository"
	matchresultservice "github.com/smallbiznis/cashapp/internal/matchresult/service"
	"github.com/smallbiznis/cashapp/internal/money"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	"github.com/smallbiznis/cashapp/internal/orchestrator/repository"
	"github.com/smallbiznis/cashapp/pkg/db/pagination"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeTransactionSvc backs transactiondomain.Service with an in-memory map.
type fakeTransactionSvc struct {
	txns map[string]*transactiondomain.PaymentTransaction
}

func newFakeTransactionSvc(txns ...*transactiondomain.PaymentTransaction) *fakeTransactionSvc {
	f := &fakeTransactionSvc{txns: map[string]*transactiondomain.PaymentTransaction{}}
	for _, t := range txns {
		f.txns[t.TransactionID] = t
	}
	return f
}

func (f *fakeTransactionSvc) Claim(ctx context.Context, req transactiondomain.ClaimTransactionRequest) (transactiondomain.ClaimTransactionResponse, error) {
	return transactiondomain.ClaimTransactionResponse{}, nil
}

func (f *fakeTransactionSvc) Get(ctx context.Context, transactionID string) (*transactiondomain.PaymentTransaction, error) {
	txn, ok := f.txns[transactionID]
	if !ok {
		return nil, transactiondomain.ErrNotFound
	}
	return txn, nil
}

func (f *fakeTransactionSvc) UpdateStatus(ctx context.Context, transactionID string, status transactiondomain.ProcessingStatus, workflowID *string) error {
	txn, ok := f.txns[transactionID]
	if !ok {
		return transactiondomain.ErrNotFound
	}
	txn.ProcessingStatus = status
	txn.WorkflowID = workflowID
	return nil
}

func (f *fakeTransactionSvc) Query(ctx context.Context, req transactiondomain.QueryTransactionsRequest) (transactiondomain.QueryTransactionsResponse, error) {
	return transactiondomain.QueryTransactionsResponse{}, nil
}

// fakeExtractorSvc returns a fixed set of candidate invoice ids.
type fakeExtractorSvc struct {
	result extractordomain.ExtractResult
	err    error
}

func (f *fakeExtractorSvc) Extract(ctx context.Context, req extractordomain.ExtractRequest) (extractordomain.ExtractResult, error) {
	return f.result, f.err
}

// fakeERPFacade returns a fixed set of invoices and records posted applications.
type fakeERPFacade struct {
	invoices []erpdomain.Invoice
	posted   []erpdomain.Application
	postErr  error
}

func (f *fakeERPFacade) FetchInvoices(ctx context.Context, invoiceIDs []string, erpSystem, customerID string) (erpdomain.FetchInvoicesResult, error) {
	return erpdomain.FetchInvoicesResult{Invoices: f.invoices}, nil
}

func (f *fakeERPFacade) PostApplication(ctx context.Context, app erpdomain.Application) (erpdomain.PostResult, error) {
	if f.postErr != nil {
		return erpdomain.PostResult{}, f.postErr
	}
	f.posted = append(f.posted, app)
	return erpdomain.PostResult{ERPTransactionID: "erp-txn-1", PostedAt: time.Unix(0, 0).UTC()}, nil
}

func (f *fakeERPFacade) TestConnection(ctx context.Context, erpSystem string) (erpdomain.ConnectionStatus, error) {
	return erpdomain.ConnectionStatus{OK: true}, nil
}

// fakeCommunicatorSvc records every dispatched event.
type fakeCommunicatorSvc struct {
	events []communicatordomain.Event
}

func (f *fakeCommunicatorSvc) Dispatch(ctx context.Context, event communicatordomain.Event) (communicatordomain.DispatchResult, error) {
	f.events = append(f.events, event)
	return communicatordomain.DispatchResult{DeliveryID: "delivery-1", Status: communicatordomain.DeliverySent}, nil
}

// fakeAuditSvc discards every append, satisfying auditdomain.Service.
type fakeAuditSvc struct {
	appended int
}

func (f *fakeAuditSvc) AppendAudit(ctx context.Context, eventType, source, correlationID string, transactionID *string, data map[string]any) (int64, error) {
	f.appended++
	return int64(f.appended), nil
}

func (f *fakeAuditSvc) QueryAudit(ctx context.Context, req auditdomain.QueryAuditRequest) (auditdomain.QueryAuditResponse, error) {
	return auditdomain.QueryAuditResponse{PageInfo: pagination.PageInfo{}}, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&orchdomain.WorkflowRecord{}, &matchresultdomain.MatchResult{}, &matchresultdomain.InvoicePaymentMatch{}, &communicationdomain.CommunicationEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestOrchestrator(t *testing.T, db *gorm.DB, txnSvc *fakeTransactionSvc, extractorSvc *fakeExtractorSvc, erpFacade *fakeERPFacade, matchResultSvc matchresultdomain.Service, communicationSvc communicationdomain.Service, communicatorSvc *fakeCommunicatorSvc, auditSvc *fakeAuditSvc) *Orchestrator {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake.NewNode: %v", err)
	}
	return NewOrchestrator(Params{
		DB:  db,
		Log: zap.NewNop(),
		Config: config.Config{
			Workflow: config.WorkflowConfig{
				MaxConcurrentTransactions:  10,
				WorkflowTimeout:            time.Minute,
				EnableAutonomousERPUpdates: true,
				DefaultERPSystem:           "erp-1",
			},
			Matcher: config.MatcherConfig{
				AmountTolerancePct:     0,
				ShortWriteOffThreshold: "0.00",
				AllowPartialAllocation: true,
			},
		},
		Clock:            clock.NewRealClock(),
		GenID:            node,
		Repo:             repository.Provide(),
		TransactionSvc:   txnSvc,
		ExtractorSvc:     extractorSvc,
		ERPFacade:        erpFacade,
		MatchResultSvc:   matchResultSvc,
		CommunicationSvc: communicationSvc,
		CommunicatorSvc:  communicatorSvc,
		AuditSvc:         auditSvc,
	})
}

func mustMatchResultService(t *testing.T, db *gorm.DB) matchresultdomain.Service {
	t.Helper()
	return matchresultservice.NewService(matchresultservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  matchresultrepository.Provide(),
		Audit: &fakeAuditSvc{},
	})
}

func mustCommunicationService(t *testing.T, db *gorm.DB) communicationdomain.Service {
	t.Helper()
	return communicationservice.NewService(communicationservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: communicationrepository.Provide(),
	})
}

func baseTxn(id string, amount money.Amount) *transactiondomain.PaymentTransaction {
	return &transactiondomain.PaymentTransaction{
		TransactionID:     id,
		SourceAccountRef:  "acct-1",
		Amount:            amount,
		Currency:          "USD",
		ValueDate:         time.Unix(0, 0).UTC(),
		RawRemittanceData: "inv-1",
		ProcessingStatus:  transactiondomain.StatusPending,
	}
}

func TestStartWorkflowExactMatchPostsAndConfirms(t *testing.T) {
	db := testDB(t)
	amount := money.MustParse("100.00")
	txn := baseTxn("txn-1", amount)
	txnSvc := newFakeTransactionSvc(txn)
	extractorSvc := &fakeExtractorSvc{result: extractordomain.ExtractResult{InvoiceIDs: []string{"inv-1"}}}
	erpFacade := &fakeERPFacade{invoices: []erpdomain.Invoice{{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: amount, Currency: "USD"}}}
	matchResultRepo := mustMatchResultService(t, db)
	communicationSvc := mustCommunicationService(t, db)
	communicatorSvc := &fakeCommunicatorSvc{}
	auditSvc := &fakeAuditSvc{}

	o := newTestOrchestrator(t, db, txnSvc, extractorSvc, erpFacade, matchResultRepo, communicationSvc, communicatorSvc, auditSvc)

	resp, err := o.StartWorkflow(context.Background(), orchdomain.StartWorkflowRequest{TransactionID: "txn-1"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if !resp.Claimed {
		t.Fatalf("expected Claimed=true")
	}

	status, err := o.GetStatus(context.Background(), resp.WorkflowID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.State != orchdomain.StateMatched {
		t.Fatalf("expected StateMatched, got %s (last_step=%s)", status.State, status.LastStep)
	}
	if status.LastStep != orchdomain.StepFinalized {
		t.Fatalf("expected StepFinalized, got %s", status.LastStep)
	}

	if txn.ProcessingStatus != transactiondomain.StatusMatched {
		t.Fatalf("expected transaction StatusMatched, got %s", txn.ProcessingStatus)
	}
	if len(erpFacade.posted) != 1 {
		t.Fatalf("expected one posted application, got %d", len(erpFacade.posted))
	}
	if len(communicatorSvc.events) != 1 || communicatorSvc.events[0].Kind != communicatordomain.KindConfirmation {
		t.Fatalf("expected one Confirmation event, got %+v", communicatorSvc.events)
	}
}

func TestStartWorkflowUnmatchedRequestsReviewAlert(t *testing.T) {
	db := testDB(t)
	amount := money.MustParse("100.00")
	txn := baseTxn("txn-2", amount)
	txnSvc := newFakeTransactionSvc(txn)
	extractorSvc := &fakeExtractorSvc{result: extractordomain.ExtractResult{}}
	erpFacade := &fakeERPFacade{}
	matchResultSvc := mustMatchResultService(t, db)
	communicationSvc := mustCommunicationService(t, db)
	communicatorSvc := &fakeCommunicatorSvc{}
	auditSvc := &fakeAuditSvc{}

	o := newTestOrchestrator(t, db, txnSvc, extractorSvc, erpFacade, matchResultSvc, communicationSvc, communicatorSvc, auditSvc)

	resp, err := o.StartWorkflow(context.Background(), orchdomain.StartWorkflowRequest{TransactionID: "txn-2"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	status, err := o.GetStatus(context.Background(), resp.WorkflowID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.State != orchdomain.StateUnmatched {
		t.Fatalf("expected StateUnmatched, got %s", status.State)
	}
	if len(erpFacade.posted) != 0 {
		t.Fatalf("expected no posted application for an unmatched payment")
	}
	if len(communicatorSvc.events) != 1 || communicatorSvc.events[0].Kind != communicatordomain.KindInternalAlert {
		t.Fatalf("expected one InternalAlert event, got %+v", communicatorSvc.events)
	}
}

func TestStartWorkflowIsIdempotentOnTransactionID(t *testing.T) {
	db := testDB(t)
	amount := money.MustParse("100.00")
	txn := baseTxn("txn-3", amount)
	txnSvc := newFakeTransactionSvc(txn)
	extractorSvc := &fakeExtractorSvc{result: extractordomain.ExtractResult{InvoiceIDs: []string{"inv-1"}}}
	erpFacade := &fakeERPFacade{invoices: []erpdomain.Invoice{{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: amount, Currency: "USD"}}}
	matchResultSvc := mustMatchResultService(t, db)
	communicationSvc := mustCommunicationService(t, db)
	communicatorSvc := &fakeCommunicatorSvc{}
	auditSvc := &fakeAuditSvc{}

	o := newTestOrchestrator(t, db, txnSvc, extractorSvc, erpFacade, matchResultSvc, communicationSvc, communicatorSvc, auditSvc)

	first, err := o.StartWorkflow(context.Background(), orchdomain.StartWorkflowRequest{TransactionID: "txn-3"})
	if err != nil {
		t.Fatalf("StartWorkflow (first): %v", err)
	}
	second, err := o.StartWorkflow(context.Background(), orchdomain.StartWorkflowRequest{TransactionID: "txn-3"})
	if err != nil {
		t.Fatalf("StartWorkflow (second): %v", err)
	}
	if second.Claimed {
		t.Fatalf("expected second StartWorkflow call to report Claimed=false")
	}
	if second.WorkflowID != first.WorkflowID {
		t.Fatalf("expected the same workflow_id, got %s and %s", first.WorkflowID, second.WorkflowID)
	}
	if len(erpFacade.posted) != 1 {
		t.Fatalf("expected exactly one posted application across both calls, got %d", len(erpFacade.posted))
	}
}

func TestCancelPreventsFurtherAdvance(t *testing.T) {
	db := testDB(t)
	repo := repository.Provide()
	record := &orchdomain.WorkflowRecord{
		WorkflowID:    "wf-1",
		TransactionID: "txn-4",
		ERPSystem:     "erp-1",
		State:         orchdomain.StateProcessing,
		LastStep:      orchdomain.StepClaimed,
		StartedAt:     time.Unix(0, 0).UTC(),
		DeadlineAt:    time.Unix(0, 0).UTC().Add(time.Minute),
	}
	if err := repo.Create(context.Background(), db, record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	o := &Orchestrator{db: db, log: zap.NewNop(), repo: repo}
	if err := o.Cancel(context.Background(), "wf-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := repo.Get(context.Background(), db, "wf-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CancelRequested {
		t.Fatalf("expected cancel_requested=true")
	}

	if err := o.Cancel(context.Background(), "wf-1"); err != nil {
		t.Fatalf("Cancel is idempotent while non-terminal: %v", err)
	}
}

func TestCancelOnTerminalWorkflowReturnsErrAlreadyTerminal(t *testing.T) {
	db := testDB(t)
	repo := repository.Provide()
	matchResultID := int64(1)
	record := &orchdomain.WorkflowRecord{
		WorkflowID:    "wf-2",
		TransactionID: "txn-5",
		ERPSystem:     "erp-1",
		State:         orchdomain.StateProcessing,
		LastStep:      orchdomain.StepClaimed,
		StartedAt:     time.Unix(0, 0).UTC(),
		DeadlineAt:    time.Unix(0, 0).UTC().Add(time.Minute),
	}
	if err := repo.Create(context.Background(), db, record); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Finalize(context.Background(), db, "wf-2", orchdomain.StateMatched, &matchResultID, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	o := &Orchestrator{db: db, log: zap.NewNop(), repo: repo}
	if err := o.Cancel(context.Background(), "wf-2"); err != orchdomain.ErrAlreadyTerminal {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

// TestReconcileStuckWorkflowPastPostFinalizesWithoutReplay covers the
// crash-recovery branch for a workflow that crashed after PostApplication
// and Communicate had already run: ReconcileStuckWorkflows must finalize it
// from the recorded match result rather than replaying the pipeline, which
// would re-post the application and resend the communication.
func TestReconcileStuckWorkflowPastPostFinalizesWithoutReplay(t *testing.T) {
	db := testDB(t)
	amount := money.MustParse("100.00")
	txn := baseTxn("txn-6", amount)
	txn.ProcessingStatus = transactiondomain.StatusProcessing
	txnSvc := newFakeTransactionSvc(txn)
	extractorSvc := &fakeExtractorSvc{}
	erpFacade := &fakeERPFacade{}
	matchResultSvc := mustMatchResultService(t, db)
	communicationSvc := mustCommunicationService(t, db)
	communicatorSvc := &fakeCommunicatorSvc{}
	auditSvc := &fakeAuditSvc{}

	o := newTestOrchestrator(t, db, txnSvc, extractorSvc, erpFacade, matchResultSvc, communicationSvc, communicatorSvc, auditSvc)

	recordResp, err := matchResultSvc.RecordMatch(context.Background(), matchresultdomain.RecordMatchServiceRequest{
		TransactionID:    "txn-6",
		Status:           matchresultdomain.StatusMatched,
		UnappliedAmount:  "0.00",
		DiscrepancyCode:  matchresultdomain.DiscrepancyNone,
		Confidence:       0.99,
		AlgorithmVersion: "matcher-v1",
		Allocations: []matchresultdomain.RecordMatchAllocation{
			{InvoiceID: "inv-1", AmountApplied: "100.00"},
		},
	})
	if err != nil {
		t.Fatalf("RecordMatch: %v", err)
	}

	repo := repository.Provide()
	record := &orchdomain.WorkflowRecord{
		WorkflowID:    "wf-6",
		TransactionID: "txn-6",
		ERPSystem:     "erp-1",
		State:         orchdomain.StateProcessing,
		LastStep:      orchdomain.StepCommunicated,
		MatchResultID: &recordResp.MatchResultID,
		StartedAt:     time.Unix(0, 0).UTC(),
		DeadlineAt:    time.Unix(0, 0).UTC().Add(time.Minute),
	}
	if err := repo.Create(context.Background(), db, record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := o.ReconcileStuckWorkflows(context.Background()); err != nil {
		t.Fatalf("ReconcileStuckWorkflows: %v", err)
	}

	if len(erpFacade.posted) != 0 {
		t.Fatalf("expected no re-posted application, got %d", len(erpFacade.posted))
	}
	if len(communicatorSvc.events) != 0 {
		t.Fatalf("expected no re-dispatched communication, got %d", len(communicatorSvc.events))
	}

	got, err := repo.Get(context.Background(), db, "wf-6")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != orchdomain.StateMatched {
		t.Fatalf("expected StateMatched, got %s", got.State)
	}
	if got.LastStep != orchdomain.StepFinalized {
		t.Fatalf("expected LastStep StepFinalized after the finalize-only path, got %s", got.LastStep)
	}
	if txn.ProcessingStatus != transactiondomain.StatusMatched {
		t.Fatalf("expected transaction StatusMatched, got %s", txn.ProcessingStatus)
	}
}

// TestReconcileStuckWorkflowBeforePostReplaysFromClaim covers the other
// branch: a workflow that crashed before Post is replayed end to end.
func TestReconcileStuckWorkflowBeforePostReplaysFromClaim(t *testing.T) {
	db := testDB(t)
	amount := money.MustParse("100.00")
	txn := baseTxn("txn-7", amount)
	txn.ProcessingStatus = transactiondomain.StatusProcessing
	txnSvc := newFakeTransactionSvc(txn)
	extractorSvc := &fakeExtractorSvc{result: extractordomain.ExtractResult{InvoiceIDs: []string{"inv-1"}}}
	erpFacade := &fakeERPFacade{invoices: []erpdomain.Invoice{{InvoiceID: "inv-1", CustomerID: "cust-1", AmountDue: amount, Currency: "USD"}}}
	matchResultSvc := mustMatchResultService(t, db)
	communicationSvc := mustCommunicationService(t, db)
	communicatorSvc := &fakeCommunicatorSvc{}
	auditSvc := &fakeAuditSvc{}

	o := newTestOrchestrator(t, db, txnSvc, extractorSvc, erpFacade, matchResultSvc, communicationSvc, communicatorSvc, auditSvc)

	repo := repository.Provide()
	record := &orchdomain.WorkflowRecord{
		WorkflowID:    "wf-7",
		TransactionID: "txn-7",
		ERPSystem:     "erp-1",
		State:         orchdomain.StateProcessing,
		LastStep:      orchdomain.StepExtracted,
		StartedAt:     time.Unix(0, 0).UTC(),
		DeadlineAt:    time.Unix(0, 0).UTC().Add(time.Minute),
	}
	if err := repo.Create(context.Background(), db, record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := o.ReconcileStuckWorkflows(context.Background()); err != nil {
		t.Fatalf("ReconcileStuckWorkflows: %v", err)
	}

	if len(erpFacade.posted) != 1 {
		t.Fatalf("expected the replayed pipeline to post once, got %d", len(erpFacade.posted))
	}
	if len(communicatorSvc.events) != 1 {
		t.Fatalf("expected the replayed pipeline to communicate once, got %d", len(communicatorSvc.events))
	}

	got, err := repo.Get(context.Background(), db, "wf-7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastStep != orchdomain.StepFinalized {
		t.Fatalf("expected StepFinalized after replay, got %s", got.LastStep)
	}
}
