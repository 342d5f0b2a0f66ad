package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// CronHandler exposes the scheduled-job endpoints. These are meant to be hit
// by an external scheduler and are idempotent per (school, date).
type CronHandler struct {
	sweep *service.SweepService
}

// NewCronHandler creates a new handler.
func NewCronHandler(sweep *service.SweepService) *CronHandler {
	return &CronHandler{sweep: sweep}
}

func sweepDate(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", raw)
}

// MarkAbsentees godoc
// @Summary Mark absentees for one school
// @Description Inserts INASISTENCIA rows for every active student without an attendance record for the date. Safe to re-run.
// @Tags Cron
// @Produce json
// @Param date query string false "Target date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /cron/marcar-faltas [post]
func (h *CronHandler) MarkAbsentees(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	date, err := sweepDate(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date"))
		return
	}

	result, err := h.sweep.Run(c.Request.Context(), claims.SchoolID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkAbsenteesAll godoc
// @Summary Mark absentees for every school
// @Tags Cron
// @Produce json
// @Param date query string false "Target date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /cron/marcar-faltas/todas [post]
func (h *CronHandler) MarkAbsenteesAll(c *gin.Context) {
	date, err := sweepDate(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date"))
		return
	}

	results, err := h.sweep.RunAll(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// Stats godoc
// @Summary Attendance sweep stats for a date
// @Tags Cron
// @Produce json
// @Param date query string false "Target date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /cron/marcar-faltas/estadisticas [get]
func (h *CronHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	date, err := sweepDate(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date"))
		return
	}

	stats, err := h.sweep.Stats(c.Request.Context(), claims.SchoolID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
