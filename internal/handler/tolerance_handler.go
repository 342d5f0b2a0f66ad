package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// ToleranceHandler exposes tolerance configuration endpoints.
type ToleranceHandler struct {
	service *service.ToleranceService
}

// NewToleranceHandler creates a new handler.
func NewToleranceHandler(svc *service.ToleranceService) *ToleranceHandler {
	return &ToleranceHandler{service: svc}
}

// Get godoc
// @Summary Get the school's tolerance settings
// @Tags Tolerance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tolerancia [get]
func (h *ToleranceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	settings, err := h.service.Get(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// SetGlobal godoc
// @Summary Set the institution-wide tolerance
// @Description Optionally propagates the new value to every class block
// @Tags Tolerance
// @Accept json
// @Produce json
// @Param payload body service.GlobalToleranceRequest true "Tolerance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tolerancia/global [put]
func (h *ToleranceHandler) SetGlobal(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.GlobalToleranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	settings, err := h.service.SetGlobal(c.Request.Context(), claims.SchoolID, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// SetForBlock godoc
// @Summary Set the tolerance for a single class block
// @Tags Tolerance
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.BlockToleranceRequest true "Tolerance payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tolerancia/individual/{id} [put]
func (h *ToleranceHandler) SetForBlock(c *gin.Context) {
	var req service.BlockToleranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	schedule, err := h.service.SetForBlock(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// SetForSelected godoc
// @Summary Set the tolerance for selected class blocks
// @Tags Tolerance
// @Accept json
// @Produce json
// @Param payload body service.SelectedToleranceRequest true "Tolerance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tolerancia/seleccionadas [put]
func (h *ToleranceHandler) SetForSelected(c *gin.Context) {
	var req service.SelectedToleranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	updated, err := h.service.SetForSelected(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
