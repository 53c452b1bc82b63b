package service

import (
	"support_chat/internal/config"
	"support_chat/internal/repository"
	"support_chat/pkg/logger"
)

type Services struct {
	Identity  IdentityService
	Registry  ConnectionRegistry
	ChatStore ChatStore
	Router    MessageRouter
	Bridge    BridgeAdapter
	Storage   StorageService
	RateLimit RateLimitService
}

// NewServices собирает граф сервисов. bot == nil выключает мост:
// роутер тогда не пересылает ответы во внешнюю платформу.
func NewServices(repos *repository.Repositories, cfg *config.Config, bot TelegramAPI, log logger.Logger) (*Services, error) {
	storage, err := NewStorageService(cfg.Upload, log)
	if err != nil {
		return nil, err
	}

	registry := NewConnectionRegistry(log)
	chatStore := NewChatStore(repos.Chat, repos.User, log)
	router := NewMessageRouter(chatStore, registry, repos.User, log)

	services := &Services{
		Identity:  NewIdentityService(repos.User, cfg.JWT, log),
		Registry:  registry,
		ChatStore: chatStore,
		Router:    router,
		Storage:   storage,
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}

	if bot != nil {
		services.Bridge = NewTelegramBridge(bot, router, chatStore, repos.User, storage, log)
		router.SetExternalSender(services.Bridge)
		log.Info("Telegram bridge initialized")
	} else {
		log.Warn("Telegram bridge disabled, external replies will not be delivered")
	}

	return services, nil
}
