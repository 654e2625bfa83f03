package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	erpdomain "github.com/smallbiznis/cashapp/internal/erp/domain"
)

// registerInvoiceRoutes exposes the ERP Facade's batch invoice fetch
// directly (spec.md §6 "POST /invoices/fetch (EF) — Batch fetch").
func (s *Server) registerInvoiceRoutes() {
	s.engine.POST("/invoices/fetch", s.FetchInvoices)
}

type fetchInvoicesRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
	ERPSystem  string   `json:"erp_system"`
	CustomerID string   `json:"customer_id"`
}

func (s *Server) FetchInvoices(c *gin.Context) {
	var req fetchInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequest("body", "invalid_json", err.Error()))
		return
	}
	if req.ERPSystem == "" {
		AbortWithError(c, invalidRequest("erp_system", "required", "erp_system is required"))
		return
	}

	result, err := s.erpFacade.FetchInvoices(c.Request.Context(), req.InvoiceIDs, req.ERPSystem, req.CustomerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":  normalizeInvoices(result.Invoices),
		"not_found": result.NotFound,
	})
}

func normalizeInvoices(invoices []erpdomain.Invoice) []erpdomain.Invoice {
	if invoices == nil {
		return []erpdomain.Invoice{}
	}
	return invoices
}
