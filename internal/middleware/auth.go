package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type AuthMiddleware struct {
	identity service.IdentityService
	log      logger.Logger
}

func NewAuthMiddleware(identity service.IdentityService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		identity: identity,
		log:      log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		user, err := m.identity.ResolveToken(c.Request.Context(), parts[1])
		if err != nil {
			m.log.Warn("Token validation failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("user_role", user.Role)
		c.Next()
	}
}

// RequireStaff пускает только admin и mechanic, вешается после RequireAuth
func (m *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		roleStr, ok := role.(string)
		if !ok || (roleStr != "admin" && roleStr != "mechanic") {
			c.JSON(http.StatusForbidden, gin.H{"error": "staff access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
