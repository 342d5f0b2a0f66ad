package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// ReportHandler exposes attendance export endpoints.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Generate godoc
// @Summary Generate an attendance report
// @Description Renders a CSV or PDF export and returns a signed download link
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.GenerateReportRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reportes [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.Generate(c.Request.Context(), claims.SchoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a generated report
// @Description The token comes from the generate response; no session is required
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reportes/descargar [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	name, file, err := h.service.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
