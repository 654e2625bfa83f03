package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	communicatordomain "github.com/smallbiznis/cashapp/internal/communicator/domain"
)

// registerNotificationRoutes exposes the Communicator directly (spec.md §6
// "POST /notifications (CM) — Dispatch communication"), independent of the
// Orchestrator's internal Communicate step.
func (s *Server) registerNotificationRoutes() {
	s.engine.POST("/notifications", s.DispatchNotification)
}

type dispatchNotificationRequest struct {
	TransactionID *string        `json:"transaction_id,omitempty"`
	Kind          string         `json:"kind"`
	Recipient     string         `json:"recipient"`
	TemplateName  string         `json:"template_name"`
	Data          map[string]any `json:"data"`
	Priority      string         `json:"priority,omitempty"`
}

type dispatchNotificationResponse struct {
	DeliveryID string `json:"delivery_id"`
}

func (s *Server) DispatchNotification(c *gin.Context) {
	var req dispatchNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequest("body", "invalid_json", err.Error()))
		return
	}
	if req.TemplateName == "" {
		AbortWithError(c, invalidRequest("template_name", "required", "template_name is required"))
		return
	}

	priority := communicatordomain.PriorityNormal
	if req.Priority != "" {
		priority = communicatordomain.Priority(req.Priority)
	}

	result, err := s.communicator.Dispatch(c.Request.Context(), communicatordomain.Event{
		TransactionID: req.TransactionID,
		Kind:          communicatordomain.Kind(req.Kind),
		Recipient:     req.Recipient,
		TemplateName:  req.TemplateName,
		Data:          req.Data,
		Priority:      priority,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dispatchNotificationResponse{DeliveryID: result.DeliveryID})
}
