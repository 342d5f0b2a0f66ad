package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// JustificationHandler exposes the absence-justification workflow endpoints.
type JustificationHandler struct {
	service *service.JustificationService
}

// NewJustificationHandler creates a new handler.
func NewJustificationHandler(svc *service.JustificationService) *JustificationHandler {
	return &JustificationHandler{service: svc}
}

// Create godoc
// @Summary Submit an absence justification
// @Tags Justifications
// @Accept json
// @Produce json
// @Param payload body service.CreateJustificationRequest true "Justification payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /justificaciones [post]
func (h *JustificationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateJustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	justification, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, justification)
}

// Get godoc
// @Summary Get a justification
// @Tags Justifications
// @Produce json
// @Param id path string true "Justification ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /justificaciones/{id} [get]
func (h *JustificationHandler) Get(c *gin.Context) {
	justification, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justification, nil)
}

// List godoc
// @Summary List justifications
// @Tags Justifications
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /justificaciones [get]
func (h *JustificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.JustificationFilter{
		SchoolID:  claims.SchoolID,
		StudentID: c.Query("student_id"),
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.JustificationStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status"))
			return
		}
		filter.Status = &status
	}

	justifications, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justifications, pagination)
}

// Types godoc
// @Summary List justification types
// @Tags Justifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /justificaciones/tipos [get]
func (h *JustificationHandler) Types(c *gin.Context) {
	types, err := h.service.Types(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, types, nil)
}

// UploadDocument godoc
// @Summary Attach a supporting document
// @Tags Justifications
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Justification ID"
// @Param file formData file true "Document (pdf, jpeg or png)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id}/documentos [post]
func (h *JustificationHandler) UploadDocument(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	upload := service.DocumentUpload{
		FileName:  fileHeader.Filename,
		MIMEType:  fileHeader.Header.Get("Content-Type"),
		SizeBytes: fileHeader.Size,
		Content:   file,
	}

	document, err := h.service.AttachDocument(c.Request.Context(), c.Param("id"), upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, document)
}

// DownloadDocument godoc
// @Summary Download a supporting document
// @Tags Justifications
// @Produce octet-stream
// @Param id path string true "Justification ID"
// @Param documentId path string true "Document ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /justificaciones/{id}/documentos/{documentId} [get]
func (h *JustificationHandler) DownloadDocument(c *gin.Context) {
	document, reader, err := h.service.OpenDocument(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", `attachment; filename="`+document.FileName+`"`)
	c.Header("Content-Type", document.MIMEType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

// Approve godoc
// @Summary Approve a justification
// @Description Flips the linked attendance records to JUSTIFICADA
// @Tags Justifications
// @Accept json
// @Produce json
// @Param id path string true "Justification ID"
// @Param payload body service.ReviewJustificationRequest false "Review notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id}/aprobar [put]
func (h *JustificationHandler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a justification
// @Tags Justifications
// @Accept json
// @Produce json
// @Param id path string true "Justification ID"
// @Param payload body service.ReviewJustificationRequest false "Review notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id}/rechazar [put]
func (h *JustificationHandler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject)
}

// RequestDocumentation godoc
// @Summary Request more documentation
// @Tags Justifications
// @Accept json
// @Produce json
// @Param id path string true "Justification ID"
// @Param payload body service.ReviewJustificationRequest false "Review notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id}/solicitar-documentacion [put]
func (h *JustificationHandler) RequestDocumentation(c *gin.Context) {
	h.review(c, h.service.RequestDocumentation)
}

// StartReview godoc
// @Summary Move a justification into review
// @Tags Justifications
// @Produce json
// @Param id path string true "Justification ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id}/revisar [put]
func (h *JustificationHandler) StartReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	justification, err := h.service.StartReview(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justification, nil)
}

// Resubmit godoc
// @Summary Resubmit a rejected justification
// @Description The only re-entry edge: RECHAZADA back to PENDIENTE, review fields cleared
// @Tags Justifications
// @Accept json
// @Produce json
// @Param id path string true "Justification ID"
// @Param payload body service.ResubmitJustificationRequest true "Updated reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id}/reenviar [post]
func (h *JustificationHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ResubmitJustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	justification, err := h.service.Resubmit(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justification, nil)
}

// Delete godoc
// @Summary Delete a pending justification
// @Tags Justifications
// @Param id path string true "Justification ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /justificaciones/{id} [delete]
func (h *JustificationHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type justificationReview func(ctx context.Context, id string, req service.ReviewJustificationRequest, claims *models.JWTClaims) (*models.JustificationDetail, error)

func (h *JustificationHandler) review(c *gin.Context, fn justificationReview) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ReviewJustificationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	justification, err := fn(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justification, nil)
}
