package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// AttendanceHandler exposes QR registration and attendance queries.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// RegisterEntry godoc
// @Summary Register entry by QR
// @Description Scans a student QR code and records the entry with tolerance applied
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RegisterEntryRequest true "QR payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /asistencias/entrada [post]
func (h *AttendanceHandler) RegisterEntry(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RegisterEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.service.RegisterEntry(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// RegisterExit godoc
// @Summary Register exit by QR
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RegisterExitRequest true "QR payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /asistencias/salida [post]
func (h *AttendanceHandler) RegisterExit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RegisterExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.service.RegisterExit(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param classroom_id query string false "Filter by classroom"
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /asistencias [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.AttendanceFilter{
		SchoolID:    claims.SchoolID,
		ClassroomID: c.Query("classroom_id"),
		StudentID:   c.Query("student_id"),
		Page:        parseIntQuery(c, "page", 1),
		PageSize:    parseIntQuery(c, "page_size", 20),
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceStatus(raw)
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

	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Summary godoc
// @Summary Attendance summary for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /asistencias/resumen/{id} [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	from, err := parseDateQuery(c, "date_from")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_from"))
		return
	}
	to, err := parseDateQuery(c, "date_to")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_to"))
		return
	}

	summary, hit, err := h.service.Summary(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cache_hit": hit})
}
