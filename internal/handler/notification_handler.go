package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/response"
)

// NotificationHandler exposes the per-user notification inbox.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications for the current user
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Success 200 {object} response.Envelope
// @Router /notificaciones [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.NotificationFilter{
		UserID:   claims.UserID,
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 20),
	}
	if raw := c.Query("unread"); raw != "" {
		unread := raw == "true"
		filter.Unread = &unread
	}

	notifications, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, pagination)
}

// CountUnread godoc
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notificaciones/contar [get]
func (h *NotificationHandler) CountUnread(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.service.CountUnread(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead godoc
// @Summary Mark one notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notificaciones/{id}/leer [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark every notification as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notificaciones/leer-todas [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	updated, err := h.service.MarkAllRead(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}

// Delete godoc
// @Summary Delete a notification
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notificaciones/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
