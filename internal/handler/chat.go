package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"support_chat/internal/domain"
	"support_chat/internal/service"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

type ChatHandler struct {
	store service.ChatStore
	log   logger.Logger
}

func NewChatHandler(store service.ChatStore, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		store: store,
		log:   log,
	}
}

// currentUser достает пользователя, положенного AuthMiddleware
func currentUser(c *gin.Context) (*domain.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	user, ok := v.(*domain.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user context"})
		return nil, false
	}
	return user, true
}

// ListChats — для staff все назначенные чаты, для клиента его собственные
func (h *ChatHandler) ListChats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	chats, err := h.store.ListChats(c.Request.Context(), user)
	if err != nil {
		h.log.Error("Failed to list chats", "user_id", user.ID, "error", err)
		c.JSON(pkgerrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat возвращает чат и его историю в порядке возрастания timestamp
func (h *ChatHandler) GetChat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat ID"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	chat, messages, err := h.store.Get(c.Request.Context(), chatID, user, limit, offset)
	if err != nil {
		c.JSON(pkgerrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chat":     chat,
		"messages": messages,
	})
}

// MarkRead сбрасывает счетчик непрочитанного для вызывающего сотрудника
func (h *ChatHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat ID"})
		return
	}

	if err := h.store.MarkRead(c.Request.Context(), chatID, user); err != nil {
		c.JSON(pkgerrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Archive закрывает чат; следующее сообщение клиента создаст новый
func (h *ChatHandler) Archive(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat ID"})
		return
	}

	if err := h.store.Archive(c.Request.Context(), chatID, user); err != nil {
		c.JSON(pkgerrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
