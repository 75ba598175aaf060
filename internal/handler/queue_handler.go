package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-originality-api/internal/service"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/response"
)

// QueueHandler exposes the admin queue surface: module listings, document
// detail and manual sweep triggers.
type QueueHandler struct {
	queue  *service.QueueService
	sweeps *service.SweepService
}

// NewQueueHandler creates a new handler.
func NewQueueHandler(queue *service.QueueService, sweeps *service.SweepService) *QueueHandler {
	return &QueueHandler{queue: queue, sweeps: sweeps}
}

// ListModule godoc
// @Summary List module queue
// @Description List queue documents for one course module
// @Tags Queue
// @Produce json
// @Param cmid path int true "Course module id"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /queue/modules/{cmid} [get]
func (h *QueueHandler) ListModule(c *gin.Context) {
	cmID, err := strconv.ParseInt(c.Param("cmid"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid course module id"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	res, err := h.queue.ListModule(c.Request.Context(), cmID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// GetDocument godoc
// @Summary Get queue document
// @Description Get one queue document with its audit trail
// @Tags Queue
// @Produce json
// @Param id path string true "Document id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /queue/documents/{id} [get]
func (h *QueueHandler) GetDocument(c *gin.Context) {
	res, err := h.queue.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// ModuleActionLog godoc
// @Summary List module audit trail
// @Description List recent audit entries for one course module
// @Tags Queue
// @Produce json
// @Param cmid path int true "Course module id"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /queue/modules/{cmid}/log [get]
func (h *QueueHandler) ModuleActionLog(c *gin.Context) {
	cmID, err := strconv.ParseInt(c.Param("cmid"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid course module id"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.queue.ModuleActionLog(c.Request.Context(), cmID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}

// RunUploadSweep godoc
// @Summary Trigger the upload sweep
// @Description Run one upload-and-check sweep pass immediately
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/sweeps/upload [post]
func (h *QueueHandler) RunUploadSweep(c *gin.Context) {
	result, err := h.sweeps.UploadAndCheckSweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// RunStatusSweep godoc
// @Summary Trigger the status sweep
// @Description Run one status-control sweep pass immediately
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/sweeps/status [post]
func (h *QueueHandler) RunStatusSweep(c *gin.Context) {
	result, err := h.sweeps.StatusControlSweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
