package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// ScheduleHandler exposes class-schedule and school-calendar endpoints.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler creates a new handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List class schedule blocks
// @Tags Schedule
// @Produce json
// @Param classroom_id query string false "Filter by classroom"
// @Param day_of_week query int false "Filter by weekday (1=Monday)"
// @Success 200 {object} response.Envelope
// @Router /horarios [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := models.ScheduleFilter{
		ClassroomID: c.Query("classroom_id"),
		TeacherID:   c.Query("teacher_id"),
	}
	if raw := c.Query("day_of_week"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil || day < 1 || day > 7 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid day_of_week"))
			return
		}
		filter.DayOfWeek = &day
	}

	schedules, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// Create godoc
// @Summary Create a class schedule block
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body service.UpsertScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /horarios [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	schedule, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Update godoc
// @Summary Update a class schedule block
// @Tags Schedule
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.UpsertScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /horarios/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	schedule, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Delete godoc
// @Summary Delete a class schedule block
// @Tags Schedule
// @Param id path string true "Schedule ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /horarios/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Calendar godoc
// @Summary List school calendar entries
// @Tags Schedule
// @Produce json
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /calendario [get]
func (h *ScheduleHandler) Calendar(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

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

	entries, err := h.service.Calendar(c.Request.Context(), claims.SchoolID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// AddCalendarEntry godoc
// @Summary Add a school calendar entry
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body service.CreateCalendarRequest true "Calendar payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calendario [post]
func (h *ScheduleHandler) AddCalendarEntry(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	entry, err := h.service.AddCalendarEntry(c.Request.Context(), claims.SchoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// RemoveCalendarEntry godoc
// @Summary Remove a school calendar entry
// @Tags Schedule
// @Param id path string true "Calendar entry ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendario/{id} [delete]
func (h *ScheduleHandler) RemoveCalendarEntry(c *gin.Context) {
	if err := h.service.RemoveCalendarEntry(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
