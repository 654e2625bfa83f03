package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	erpdomain "github.com/smallbiznis/cashapp/internal/erp/domain"
	"github.com/smallbiznis/cashapp/internal/money"
)

// registerApplicationRoutes exposes the ERP Facade's PostApplication
// directly (spec.md §6 "POST /applications (EF) — Post application"),
// bypassing the Orchestrator for operational/manual posting.
func (s *Server) registerApplicationRoutes() {
	s.engine.POST("/applications", s.PostApplication)
}

type applicationLineRequest struct {
	InvoiceID     string `json:"invoice_id"`
	AmountApplied string `json:"amount_applied"`
}

type postApplicationRequest struct {
	TransactionID string                    `json:"transaction_id"`
	CustomerID    string                    `json:"customer_id"`
	ERPSystem     string                    `json:"erp_system"`
	Applications  []applicationLineRequest  `json:"applications"`
	TotalAmount   string                    `json:"total_amount"`
	Currency      string                    `json:"currency"`
}

type postApplicationResponse struct {
	ERPTransactionID string `json:"erp_transaction_id"`
}

func (s *Server) PostApplication(c *gin.Context) {
	var req postApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequest("body", "invalid_json", err.Error()))
		return
	}
	if req.TransactionID == "" {
		AbortWithError(c, invalidRequest("transaction_id", "required", "transaction_id is required"))
		return
	}

	totalAmount, err := money.Parse(req.TotalAmount)
	if err != nil {
		AbortWithError(c, invalidRequest("total_amount", "invalid_amount", err.Error()))
		return
	}

	lines := make([]erpdomain.ApplicationLine, 0, len(req.Applications))
	for _, line := range req.Applications {
		amount, err := money.Parse(line.AmountApplied)
		if err != nil {
			AbortWithError(c, invalidRequest("applications", "invalid_amount", err.Error()))
			return
		}
		lines = append(lines, erpdomain.ApplicationLine{
			InvoiceID:     line.InvoiceID,
			AmountApplied: amount,
		})
	}

	result, err := s.erpFacade.PostApplication(c.Request.Context(), erpdomain.Application{
		TransactionID: req.TransactionID,
		CustomerID:    req.CustomerID,
		ERPSystem:     req.ERPSystem,
		Applications:  lines,
		TotalAmount:   totalAmount,
		Currency:      req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Duplicate {
		// The facade treats an ERP-reported duplicate as success for the
		// Orchestrator's workflow; this direct posting surface reports it
		// as a conflict instead so a manual caller knows no new posting
		// happened (spec.md §6 "409 DuplicatePayment").
		c.JSON(http.StatusConflict, postApplicationResponse{ERPTransactionID: result.ERPTransactionID})
		return
	}

	c.JSON(http.StatusOK, postApplicationResponse{ERPTransactionID: result.ERPTransactionID})
}
