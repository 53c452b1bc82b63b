package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support_chat/internal/domain"
	"support_chat/internal/service"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

type AuthHandler struct {
	identity service.IdentityService
	log      logger.Logger
}

func NewAuthHandler(identity service.IdentityService, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		log:      log,
	}
}

type LoginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	APIKey string `json:"api_key"`
	Phone  string `json:"phone"`
}

// Login обменивает долгоживущий credential на сессионный токен
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred := service.Credential{
		UserID: req.UserID,
		APIKey: req.APIKey,
		Phone:  req.Phone,
	}

	user, token, err := h.identity.Login(c.Request.Context(), cred)
	if err != nil {
		h.log.Warn("Login failed", "user_id", req.UserID, "error", err)
		c.JSON(pkgerrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  user,
		"token": token,
	})
}

type RegisterRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Role        string `json:"role" binding:"required"`
	DisplayName string `json:"display_name"`
	APIKey      string `json:"api_key"`
	Phone       string `json:"phone"`
	TelegramID  int64  `json:"telegram_id"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &domain.User{
		ID:          req.UserID,
		Role:        req.Role,
		DisplayName: req.DisplayName,
		APIKey:      req.APIKey,
		Phone:       req.Phone,
		TelegramID:  req.TelegramID,
	}

	if err := h.identity.Register(c.Request.Context(), user); err != nil {
		h.log.Warn("Registration failed", "user_id", req.UserID, "error", err)
		c.JSON(pkgerrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}
