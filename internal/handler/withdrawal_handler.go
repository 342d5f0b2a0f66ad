package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// WithdrawalHandler exposes the retiro workflow endpoints.
type WithdrawalHandler struct {
	service *service.WithdrawalService
}

// NewWithdrawalHandler creates a new handler.
func NewWithdrawalHandler(svc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{service: svc}
}

// Create godoc
// @Summary Request a student withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param payload body service.CreateWithdrawalRequest true "Withdrawal payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /retiros [post]
func (h *WithdrawalHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	withdrawal, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, withdrawal)
}

// Get godoc
// @Summary Get a withdrawal
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /retiros/{id} [get]
func (h *WithdrawalHandler) Get(c *gin.Context) {
	withdrawal, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawal, nil)
}

// List godoc
// @Summary List withdrawals
// @Tags Withdrawals
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /retiros [get]
func (h *WithdrawalHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.WithdrawalFilter{
		SchoolID:  claims.SchoolID,
		StudentID: c.Query("student_id"),
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 20),
	}
	// Guardians only ever see their own requests.
	if claims.Role == models.RoleGuardian {
		filter.RequestedBy = claims.UserID
	}
	if raw := c.Query("status"); raw != "" {
		status := models.WithdrawalStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status"))
			return
		}
		filter.Status = &status
	}
	var err error
	if filter.DateFrom, err = parseDateQuery(c, "date_from"); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_from"))
		return
	}
	if filter.DateTo, err = parseDateQuery(c, "date_to"); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_to"))
		return
	}

	withdrawals, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawals, pagination)
}

// Review godoc
// @Summary Move a withdrawal into review
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /retiros/{id}/revisar [put]
func (h *WithdrawalHandler) Review(c *gin.Context) {
	h.decide(c, h.service.Review)
}

// Approve godoc
// @Summary Approve a withdrawal
// @Description Only the titular guardian decision flow applies; terminal states reject the move
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param payload body service.ReviewWithdrawalRequest false "Review notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /retiros/{id}/aprobar [put]
func (h *WithdrawalHandler) Approve(c *gin.Context) {
	h.decideWithNotes(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param payload body service.ReviewWithdrawalRequest false "Review notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /retiros/{id}/rechazar [put]
func (h *WithdrawalHandler) Reject(c *gin.Context) {
	h.decideWithNotes(c, h.service.Reject)
}

// Start godoc
// @Summary Start an approved withdrawal
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /retiros/{id}/iniciar [put]
func (h *WithdrawalHandler) Start(c *gin.Context) {
	h.decide(c, h.service.Start)
}

// Complete godoc
// @Summary Complete a withdrawal
// @Description Marks the attendance record RETIRADO and notifies the guardians
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /retiros/{id}/completar [put]
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	h.decide(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel a withdrawal request
// @Tags Withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /retiros/{id}/cancelar [put]
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	h.decide(c, h.service.Cancel)
}

type withdrawalTransition func(ctx context.Context, id string, claims *models.JWTClaims) (*models.WithdrawalDetail, error)

type withdrawalDecision func(ctx context.Context, id string, req service.ReviewWithdrawalRequest, claims *models.JWTClaims) (*models.WithdrawalDetail, error)

func (h *WithdrawalHandler) decide(c *gin.Context, fn withdrawalTransition) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	withdrawal, err := fn(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawal, nil)
}

func (h *WithdrawalHandler) decideWithNotes(c *gin.Context, fn withdrawalDecision) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ReviewWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	withdrawal, err := fn(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, withdrawal, nil)
}
