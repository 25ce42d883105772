package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/auth/credentials"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
)

// LocalLoginProvider is the session login provider for password logins.
const LocalLoginProvider = "local"

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	log := logger.From(c.Request.Context())

	userID, err := h.credentials.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			h.metrics.PasswordLogin(metrics.OutcomeInvalid)
		} else {
			log.Error("password login failed", zap.Error(err))
			h.metrics.PasswordLogin(metrics.OutcomeError)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := h.startSession(c, userID, LocalLoginProvider); err != nil {
		log.Error("failed to create session", zap.Error(err))
		h.metrics.PasswordLogin(metrics.OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	h.metrics.PasswordLogin(metrics.OutcomeSuccess)
	log.Info("password login succeeded", logger.UserID(userID))
	c.JSON(http.StatusOK, gin.H{"status": "logged_in"})
}
