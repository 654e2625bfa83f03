package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerERPHealthRoutes exposes the ERP Facade's per-system health probe
// (spec.md §6 "GET /erp/{system}/test (EF) — Health probe").
func (s *Server) registerERPHealthRoutes() {
	s.engine.GET("/erp/:system/test", s.TestERPConnection)
}

type erpHealthResponse struct {
	OK        bool  `json:"ok"`
	LatencyMS int64 `json:"latency_ms"`
}

func (s *Server) TestERPConnection(c *gin.Context) {
	erpSystem := c.Param("system")

	status, err := s.erpFacade.TestConnection(c.Request.Context(), erpSystem)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, erpHealthResponse{OK: status.OK, LatencyMS: status.LatencyMS})
}
