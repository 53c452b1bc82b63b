package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type WebhookHandler struct {
	bridge service.BridgeAdapter
	log    logger.Logger
}

func NewWebhookHandler(bridge service.BridgeAdapter, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		bridge: bridge,
		log:    log,
	}
}

// Handle принимает update от Telegram. Немаршрутизируемые update
// подтверждаются 200, иначе Telegram будет повторять их бесконечно.
func (h *WebhookHandler) Handle(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warn("Undecodable webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
		return
	}

	if err := h.bridge.HandleUpdate(c.Request.Context(), update); err != nil {
		h.log.Error("Failed to process update", "update_id", update.UpdateID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process update"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
