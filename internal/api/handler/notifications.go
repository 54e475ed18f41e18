package handler

import (
	"campuscare/backend/internal/apperr"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultNotificationLimit = 50

// ListNotifications returns the caller's notifications, newest first.
// ?since=RFC3339 limits the list to newer ones.
func (h *Handler) ListNotifications(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(c, apperr.Invalid("since must be an RFC3339 timestamp"))
			return
		}
		since = t
	}
	items, err := h.Notifications.ListForUser(c.Request.Context(), actor(c).ID, since, queryInt(c, "limit", defaultNotificationLimit))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Notifications.MarkRead(c.Request.Context(), actor(c).ID, c.Param("id")); err != nil {
		h.writeError(c, notFound(err, "notification"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
