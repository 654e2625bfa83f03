package domain

import (
	"context"

	"github.com/smallbiznis/cashapp/pkg/db/pagination"
)

// QueryAuditRequest is the HTTP-facing filter for QueryAudit, paginated the
// same way the reviewed repo's audit list endpoint is.
type QueryAuditRequest struct {
	pagination.Pagination
	EventType     string
	Source        string
	CorrelationID string
	TransactionID string
	StartAt       *string
	EndAt         *string
}

// QueryAuditResponse carries a page of audit events plus cursor info.
type QueryAuditResponse struct {
	pagination.PageInfo
	Events []AuditEvent `json:"events"`
}

// Service is the Audit Store's AppendAudit/QueryAudit contract (spec.md §4.6).
type Service interface {
	AppendAudit(ctx context.Context, eventType, source, correlationID string, transactionID *string, data map[string]any) (int64, error)
	QueryAudit(ctx context.Context, req QueryAuditRequest) (QueryAuditResponse, error)
}
