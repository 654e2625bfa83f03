package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerHealthRoutes wires the liveness probe (spec.md §6 "GET /health —
// Liveness + dependency status"). The database is the only hard dependency
// an autonomous agent cannot run without; a failed ping reports 503.
func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
