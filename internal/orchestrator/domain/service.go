package domain

import "context"

// StartWorkflowRequest carries the claimed transaction's identity plus the
// ERP system to post against, since PaymentTransaction itself does not
// carry erp_system (spec.md §3) and the Facade requires one per call.
type StartWorkflowRequest struct {
	TransactionID string
	ERPSystem     string // falls back to the configured default when empty
}

type StartWorkflowResponse struct {
	WorkflowID string
	// Claimed is false when a workflow for this transaction already
	// exists; WorkflowID then points at the existing handle.
	Claimed bool
}

type GetStatusResponse struct {
	WorkflowID    string
	TransactionID string
	State         State
	LastStep      Step
	MatchResultID *int64
	Error         *string
}

// Service is the Orchestrator's contract (spec.md §4.4).
type Service interface {
	StartWorkflow(ctx context.Context, req StartWorkflowRequest) (StartWorkflowResponse, error)
	GetStatus(ctx context.Context, workflowID string) (GetStatusResponse, error)
	// Cancel is cooperative: the running step finishes (to preserve
	// idempotency of any in-flight external call) before the workflow
	// observes the cancellation and terminates with state=Error,
	// reason=Cancelled (spec.md §4.4).
	Cancel(ctx context.Context, workflowID string) error
}
