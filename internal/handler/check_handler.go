package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-originality-api/internal/dto"
	"github.com/noah-isme/sma-originality-api/internal/service"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/response"
)

// CheckHandler exposes the synchronous verification endpoint.
type CheckHandler struct {
	service *service.VerificationService
}

// NewCheckHandler creates a new handler.
func NewCheckHandler(svc *service.VerificationService) *CheckHandler {
	return &CheckHandler{service: svc}
}

// CheckNow godoc
// @Summary Verify a document now
// @Description Run or resume verification for one submission and return the render-ready result
// @Tags Verification
// @Accept json
// @Produce json
// @Param payload body dto.CheckRequest true "Check payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /check [post]
func (h *CheckHandler) CheckNow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check payload"))
		return
	}

	result, err := h.service.CheckNow(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
