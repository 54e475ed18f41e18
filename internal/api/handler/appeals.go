package handler

import (
	"campuscare/backend/internal/appeal"
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/models"
	"net/http"

	"github.com/gin-gonic/gin"
)

type appealRequest struct {
	appeal.Target
	Reason string `json:"reason"`
}

type decideRequest struct {
	Decision string `json:"decision" binding:"required"` // "approve" or "reject"
	Note     string `json:"note"`
}

func (h *Handler) SubmitAppeal(c *gin.Context) {
	var req appealRequest
	if !h.bind(c, &req) {
		return
	}
	a, err := h.Appeals.Submit(c.Request.Context(), actor(c), req.Target, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListAppeals filters by ?status=; students only ever see their own appeals.
func (h *Handler) ListAppeals(c *gin.Context) {
	appeals, err := h.Appeals.List(c.Request.Context(), actor(c), models.AppealStatus(c.Query("status")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeals": appeals})
}

func (h *Handler) DecideAppeal(c *gin.Context) {
	var req decideRequest
	if !h.bind(c, &req) {
		return
	}
	var approve bool
	switch req.Decision {
	case "approve":
		approve = true
	case "reject":
	default:
		h.writeError(c, apperr.Invalid("decision must be approve or reject"))
		return
	}
	a, err := h.Appeals.Decide(c.Request.Context(), actor(c), c.Param("id"), approve, req.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
