package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// StudentHandler exposes student and guardian-link endpoints.
type StudentHandler struct {
	service *service.StudentService
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(svc *service.StudentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param classroom_id query string false "Filter by classroom"
// @Param search query string false "Search by name, DNI or code"
// @Success 200 {object} response.Envelope
// @Router /estudiantes [get]
func (h *StudentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.StudentFilter{
		SchoolID:    claims.SchoolID,
		ClassroomID: c.Query("classroom_id"),
		Search:      c.Query("search"),
		Page:        parseIntQuery(c, "page", 1),
		PageSize:    parseIntQuery(c, "page_size", 20),
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}

	students, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /estudiantes/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Enroll godoc
// @Summary Enroll a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /estudiantes [post]
func (h *StudentHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	student, err := h.service.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Transfer godoc
// @Summary Transfer a student to another classroom
// @Tags Students
// @Accept json
// @Param id path string true "Student ID"
// @Success 204 {object} response.Envelope
// @Router /estudiantes/{id}/aula [put]
func (h *StudentHandler) Transfer(c *gin.Context) {
	var payload struct {
		ClassroomID string `json:"classroom_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "classroom_id required"))
		return
	}

	if err := h.service.Transfer(c.Request.Context(), c.Param("id"), payload.ClassroomID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RegenerateQR godoc
// @Summary Regenerate the student's QR token
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /estudiantes/{id}/qr [post]
func (h *StudentHandler) RegenerateQR(c *gin.Context) {
	qr, err := h.service.RegenerateQR(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"qr_code": qr}, nil)
}

// Classrooms godoc
// @Summary List classrooms
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /aulas [get]
func (h *StudentHandler) Classrooms(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rooms, err := h.service.Classrooms(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// Guardians godoc
// @Summary List guardians of a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /estudiantes/{id}/apoderados [get]
func (h *StudentHandler) Guardians(c *gin.Context) {
	contacts, err := h.service.Guardians(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contacts, nil)
}

// LinkGuardian godoc
// @Summary Link a guardian to a student
// @Tags Students
// @Accept json
// @Param id path string true "Student ID"
// @Param payload body service.LinkGuardianRequest true "Link payload"
// @Success 204 {object} response.Envelope
// @Router /estudiantes/{id}/apoderados [post]
func (h *StudentHandler) LinkGuardian(c *gin.Context) {
	var req service.LinkGuardianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.LinkGuardian(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UnlinkGuardian godoc
// @Summary Unlink a guardian from a student
// @Tags Students
// @Param id path string true "Student ID"
// @Param guardianId path string true "Guardian ID"
// @Success 204 {object} response.Envelope
// @Router /estudiantes/{id}/apoderados/{guardianId} [delete]
func (h *StudentHandler) UnlinkGuardian(c *gin.Context) {
	if err := h.service.UnlinkGuardian(c.Request.Context(), c.Param("id"), c.Param("guardianId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyStudents godoc
// @Summary List the students linked to the calling guardian
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /apoderados/estudiantes [get]
func (h *StudentHandler) MyStudents(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	students, err := h.service.StudentsOfGuardian(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
