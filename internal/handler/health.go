package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support_chat/internal/config"
)

type HealthHandler struct {
	environment   string
	bridgeEnabled bool
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		environment:   cfg.Environment,
		bridgeEnabled: cfg.Telegram.Enabled,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "support-chat",
	})
}

// ServerInfo возвращает информацию о сервере для клиентов
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"environment":    h.environment,
		"bridge_enabled": h.bridgeEnabled,
		"api_base":       "/api/v1",
		"ws_staff":       "/ws/admin",
		"ws_customer":    "/ws/user",
	})
}
