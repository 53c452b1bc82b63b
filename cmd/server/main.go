package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support_chat/internal/config"
	"support_chat/internal/handler"
	"support_chat/internal/middleware"
	"support_chat/internal/repository"
	"support_chat/internal/service"
	"support_chat/pkg/logger"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	// Проверка подключения к БД
	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Проверка подключения к Redis
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Инициализация Telegram-бота. Без токена сервис работает
	// как чистый web-чат, входящие и исходящие только по WebSocket.
	bot := setupBot(cfg, appLogger)

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	// Инициализация сервисов
	services, err := service.NewServices(repos, cfg, bot, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize services", "error", err)
	}

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Identity, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupBot(cfg *config.Config, log logger.Logger) service.TelegramAPI {
	if !cfg.Telegram.Enabled || cfg.Telegram.Token == "" {
		log.Warn("Telegram bridge disabled, no bot token configured")
		return nil
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.Token, cfg.Telegram.APIBase)
	if err != nil {
		log.Fatal("Failed to initialize Telegram bot", "error", err)
	}
	log.Info("Telegram bot authorized", "username", bot.Self.UserName)

	// Регистрируем webhook, чтобы Telegram слал апдейты на наш endpoint
	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			log.Fatal("Invalid webhook URL", "url", cfg.Telegram.WebhookURL, "error", err)
		}
		if _, err := bot.Request(wh); err != nil {
			log.Fatal("Failed to register webhook", "error", err)
		}
		log.Info("Telegram webhook registered", "url", cfg.Telegram.WebhookURL)
	}

	return bot
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// Server info - для получения настроек сервера
	router.GET("/server-info", handlers.Health.ServerInfo)

	// Раздача сохраненных вложений
	router.Static("/files", cfg.Upload.Dir)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Публичные endpoints
		public := v1.Group("/auth")
		{
			public.POST("/register", rateLimitMiddleware.Limit(), handlers.Auth.Register)
			public.POST("/login", rateLimitMiddleware.Limit(), handlers.Auth.Login)
		}

		// Защищенные endpoints
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			chats := protected.Group("/chats")
			{
				chats.GET("", handlers.Chat.ListChats)
				chats.GET("/:id", handlers.Chat.GetChat)
				chats.POST("/:id/read", authMiddleware.RequireStaff(), handlers.Chat.MarkRead)
				chats.POST("/:id/archive", authMiddleware.RequireStaff(), handlers.Chat.Archive)
			}

			protected.POST("/upload/:type", handlers.Upload.Upload)
		}
	}

	// WebSocket endpoints: staff и клиенты подключаются отдельно,
	// credential передается в query string при рукопожатии
	router.GET("/ws/admin", handlers.WebSocket.HandleStaff)
	router.GET("/ws/user", handlers.WebSocket.HandleCustomer)

	// Webhook моста. Маршрут есть только когда бот сконфигурирован.
	if handlers.Webhook != nil {
		router.POST("/telegram/webhook", rateLimitMiddleware.WebhookLimit(), handlers.Webhook.Handle)
	}

	return router
}
