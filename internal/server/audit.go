package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	"github.com/smallbiznis/cashapp/pkg/db/pagination"
)

// registerAuditRoutes exposes a read-only view over the append-only audit
// log, keyed by workflow (spec.md §9 supplement: an operator needs to
// inspect why a given workflow landed where it did without a direct SQL
// session).
func (s *Server) registerAuditRoutes() {
	s.engine.GET("/workflows/cash-application/:id/audit", s.QueryWorkflowAudit)
}

type auditEventResponse struct {
	Seq           int64          `json:"seq"`
	Ts            string         `json:"ts"`
	EventType     string         `json:"event_type"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id"`
	TransactionID *string        `json:"transaction_id,omitempty"`
	Data          map[string]any `json:"data"`
}

type queryAuditResponse struct {
	Events        []auditEventResponse `json:"events"`
	NextPageToken string               `json:"next_page_token"`
	HasMore       bool                 `json:"has_more"`
}

func (s *Server) QueryWorkflowAudit(c *gin.Context) {
	workflowID := c.Param("id")

	req := auditdomain.QueryAuditRequest{
		CorrelationID: workflowID,
		Pagination: pagination.Pagination{
			PageToken: c.Query("page_token"),
			PageSize:  10,
		},
	}
	if ps := c.Query("page_size"); ps != "" {
		n, err := strconv.Atoi(ps)
		if err != nil {
			AbortWithError(c, invalidRequest("page_size", "invalid", "page_size must be an integer"))
			return
		}
		req.Pagination.PageSize = n
	}

	result, err := s.auditSvc.QueryAudit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events := make([]auditEventResponse, 0, len(result.Events))
	for _, e := range result.Events {
		events = append(events, auditEventResponse{
			Seq:           e.Seq,
			Ts:            e.Ts.Format(time.RFC3339),
			EventType:     e.EventType,
			Source:        e.Source,
			CorrelationID: e.CorrelationID,
			TransactionID: e.TransactionID,
			Data:          e.Data,
		})
	}

	c.JSON(http.StatusOK, queryAuditResponse{
		Events:        events,
		NextPageToken: result.NextPageToken,
		HasMore:       result.HasMore,
	})
}
