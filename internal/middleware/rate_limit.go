package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit ограничивает публичные auth-ручки по IP клиента
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return m.limit("auth", 100, 60)
}

// WebhookLimit шире обычного: Telegram доставляет апдейты пачками
// с общего пула адресов
func (m *RateLimitMiddleware) WebhookLimit() gin.HandlerFunc {
	return m.limit("webhook", 300, 60)
}

func (m *RateLimitMiddleware) limit(scope string, limit, window int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + scope + ":" + c.ClientIP()

		allowed, err := m.rateLimitService.CheckLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err, "scope", scope)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			c.Abort()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		count, err := m.rateLimitService.Increment(c.Request.Context(), key, window)
		if err != nil {
			m.log.Error("Rate limit increment failed", "error", err, "scope", scope)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
