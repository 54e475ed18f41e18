package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type signUpRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

type signInRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUp реєструє акаунт студента
func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Language == "" {
		req.Language = language(c)
	}
	user, token, err := h.Auth.SignUp(c.Request.Context(), req.Username, req.Password, req.DisplayName, req.Language)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if !h.bind(c, &req) {
		return
	}
	user, token, err := h.Auth.SignIn(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
