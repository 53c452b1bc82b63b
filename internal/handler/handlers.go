package handler

import (
	"support_chat/internal/config"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Chat      *ChatHandler
	Upload    *UploadHandler
	WebSocket *WebSocketHandler
	Webhook   *WebhookHandler
}

func NewHandlers(services *service.Services, cfg *config.Config, log logger.Logger) *Handlers {
	handlers := &Handlers{
		Health:    NewHealthHandler(cfg),
		Auth:      NewAuthHandler(services.Identity, log),
		Chat:      NewChatHandler(services.ChatStore, log),
		Upload:    NewUploadHandler(services.Storage, log),
		WebSocket: NewWebSocketHandler(services.Identity, services.Registry, services.Router, log),
	}

	// Webhook регистрируется только когда мост к Telegram поднят
	if services.Bridge != nil {
		handlers.Webhook = NewWebhookHandler(services.Bridge, log)
		log.Info("Webhook handler initialized")
	}

	return handlers
}
