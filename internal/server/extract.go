package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	extractordomain "github.com/smallbiznis/cashapp/internal/extractor/domain"
)

// registerExtractRoutes exposes the Extractor directly (spec.md §6 "POST
// /extract (EX) — Extract invoice ids"), independent of the Orchestrator's
// internal call during a workflow run.
func (s *Server) registerExtractRoutes() {
	s.engine.POST("/extract", s.Extract)
}

type extractRequest struct {
	DocumentURIs        []string `json:"document_uris"`
	RemittanceText      string   `json:"remittance_text"`
	ClientID            string   `json:"client_id"`
	TierPreference      string   `json:"tier_preference,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty"`
}

func (s *Server) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequest("body", "invalid_json", err.Error()))
		return
	}

	tierPreference := extractordomain.TierAuto
	if req.TierPreference != "" {
		tierPreference = extractordomain.TierPreference(req.TierPreference)
	}

	result, err := s.extractorSvc.Extract(c.Request.Context(), extractordomain.ExtractRequest{
		DocumentURIs:        req.DocumentURIs,
		RemittanceText:      req.RemittanceText,
		ClientID:            req.ClientID,
		TierPreference:      tierPreference,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
