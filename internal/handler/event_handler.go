package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/service"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/response"
)

// EventHandler receives submission events from the host.
type EventHandler struct {
	service *service.EventService
}

// NewEventHandler creates a new handler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{service: svc}
}

// Submit godoc
// @Summary Receive a submission event
// @Description Queue a host submission event for admission processing
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body models.SubmissionEvent true "Submission event"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events/submissions [post]
func (h *EventHandler) Submit(c *gin.Context) {
	var event models.SubmissionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission event"))
		return
	}

	if err := h.service.Submit(c.Request.Context(), &event); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, gin.H{"status": "accepted"}, nil)
}
