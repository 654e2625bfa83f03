package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
)

// registerWorkflowRoutes wires the three workflow control-plane operations
// (spec.md §6): submit a transaction, poll status, request cancellation.
func (s *Server) registerWorkflowRoutes() {
	g := s.engine.Group("/workflows")
	g.POST("/cash-application/start", s.StartWorkflow)
	g.GET("/:id", s.GetWorkflow)
	g.POST("/:id/cancel", s.CancelWorkflow)
}

// startWorkflowRequest is the transaction payload plus the target ERP
// system (spec.md §6 persisted `transactions` row, minus the fields the
// server derives: processing_status, created_at/updated_at).
type startWorkflowRequest struct {
	TransactionID          string   `json:"transaction_id"`
	SourceAccountRef       string   `json:"source_account_ref"`
	Amount                 string   `json:"amount"`
	Currency               string   `json:"currency"`
	ValueDate              string   `json:"value_date"`
	RawRemittanceData      string   `json:"raw_remittance_data"`
	CustomerIdentifier     *string  `json:"customer_identifier,omitempty"`
	AssociatedDocumentURIs []string `json:"associated_document_uris,omitempty"`
	ERPSystem              string   `json:"erp_system,omitempty"`
}

type startWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

func (s *Server) StartWorkflow(c *gin.Context) {
	var req startWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequest("body", "invalid_json", err.Error()))
		return
	}
	if req.TransactionID == "" {
		AbortWithError(c, invalidRequest("transaction_id", "required", "transaction_id is required"))
		return
	}

	valueDate, err := time.Parse(time.RFC3339, req.ValueDate)
	if err != nil {
		AbortWithError(c, invalidRequest("value_date", "invalid_format", "value_date must be RFC3339"))
		return
	}

	claimReq := transactiondomain.ClaimTransactionRequest{
		TransactionID:          req.TransactionID,
		SourceAccountRef:       req.SourceAccountRef,
		Amount:                 req.Amount,
		Currency:               req.Currency,
		ValueDate:              valueDate,
		RawRemittanceData:      req.RawRemittanceData,
		CustomerIdentifier:     req.CustomerIdentifier,
		AssociatedDocumentURIs: req.AssociatedDocumentURIs,
	}

	if _, err := s.transactionSvc.Claim(c.Request.Context(), claimReq); err != nil {
		AbortWithError(c, err)
		return
	}

	startResp, err := s.orchestrator.StartWorkflow(c.Request.Context(), orchdomain.StartWorkflowRequest{
		TransactionID: req.TransactionID,
		ERPSystem:     req.ERPSystem,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !startResp.Claimed {
		// spec.md §6 "409 duplicate transaction_id (returns existing id)".
		c.JSON(http.StatusConflict, startWorkflowResponse{
			WorkflowID: startResp.WorkflowID,
			Status:     "Duplicate",
		})
		return
	}

	c.JSON(http.StatusAccepted, startWorkflowResponse{
		WorkflowID: startResp.WorkflowID,
		Status:     "Accepted",
	})
}

type workflowStatusResponse struct {
	State         orchdomain.State `json:"state"`
	TransactionID string           `json:"transaction_id"`
	LastStep      orchdomain.Step  `json:"last_step"`
	MatchResultID *int64           `json:"match_result_id,omitempty"`
	Error         *string          `json:"error,omitempty"`
}

func (s *Server) GetWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	resp, err := s.orchestrator.GetStatus(c.Request.Context(), workflowID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, workflowStatusResponse{
		State:         resp.State,
		TransactionID: resp.TransactionID,
		LastStep:      resp.LastStep,
		MatchResultID: resp.MatchResultID,
		Error:         resp.Error,
	})
}

func (s *Server) CancelWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	if err := s.orchestrator.Cancel(c.Request.Context(), workflowID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}
