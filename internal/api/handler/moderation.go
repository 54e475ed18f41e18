package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// unresolvedOnly reads ?all=true, which includes resolved items.
func unresolvedOnly(c *gin.Context) bool {
	return c.Query("all") != "true"
}

func (h *Handler) ListFlagged(c *gin.Context) {
	items, err := h.Moderation.ListFlagged(c.Request.Context(), actor(c), unresolvedOnly(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flagged": items})
}

func (h *Handler) ResolveFlagged(c *gin.Context) {
	if err := h.Moderation.ResolveFlagged(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPending(c *gin.Context) {
	items, err := h.Moderation.ListPending(c.Request.Context(), actor(c), unresolvedOnly(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": items})
}

func (h *Handler) ApprovePending(c *gin.Context) {
	contentID, err := h.Moderation.ApprovePending(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content_id": contentID})
}

func (h *Handler) RejectPending(c *gin.Context) {
	if err := h.Moderation.RejectPending(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
