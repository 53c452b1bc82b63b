package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/repository"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	log := logger.New("error")

	users := repository.NewMemoryUserRepository()
	chats := repository.NewMemoryChatRepository()

	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &domain.User{
		ID:     "admin_1",
		Role:   domain.RoleAdmin,
		APIKey: "admin-key-1",
	}))
	require.NoError(t, users.Create(ctx, &domain.User{
		ID:    "customer_1",
		Role:  domain.RoleCustomer,
		Phone: "+79990001122",
	}))

	jwtCfg := config.JWTConfig{SessionSecret: "test-secret", SessionTTL: time.Hour}
	identity := service.NewIdentityService(users, jwtCfg, log)
	registry := service.NewConnectionRegistry(log)
	store := service.NewChatStore(chats, users, log)
	router := service.NewMessageRouter(store, registry, users, log)

	wsHandler := NewWebSocketHandler(identity, registry, router, log)

	engine := gin.New()
	engine.GET("/ws/admin", wsHandler.HandleStaff)
	engine.GET("/ws/user", wsHandler.HandleCustomer)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func closeCode(err error) int {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		return closeErr.Code
	}
	return 0
}

func TestWebSocketCustomerSendAndEcho(t *testing.T) {
	srv := newWSServer(t)
	conn := dialWS(t, srv, "/ws/user?phone=%2B79990001122")

	require.NoError(t, conn.WriteJSON(map[string]string{"content": "hello"}))

	var message domain.Message
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, "customer_1", message.FromUser)
	assert.Equal(t, "hello", message.Content)
	assert.Equal(t, domain.MessageTypeText, message.MessageType)
	assert.Equal(t, domain.SourceWeb, message.Source)
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	srv := newWSServer(t)
	conn := dialWS(t, srv, "/ws/admin?api_key=wrong-key")

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, domain.CloseAuthFailed, closeCode(err))
}

func TestWebSocketRejectsUnknownDeclaredUser(t *testing.T) {
	srv := newWSServer(t)
	conn := dialWS(t, srv, "/ws/user?user_id=customer_ghost&phone=%2B79990001122")

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, domain.CloseInvalidUser, closeCode(err))
}

func TestWebSocketRejectsCredentialKindMismatch(t *testing.T) {
	srv := newWSServer(t)

	// Телефон на endpoint персонала
	conn := dialWS(t, srv, "/ws/admin?phone=%2B79990001122")
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, domain.CloseAuthFailed, closeCode(err))
}

func TestWebSocketErrorFrameKeepsConnectionOpen(t *testing.T) {
	srv := newWSServer(t)
	conn := dialWS(t, srv, "/ws/user?phone=%2B79990001122")

	// Непарсящийся фрейм
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))

	var errFrame domain.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.True(t, errFrame.Error)
	assert.Equal(t, domain.ErrorCodeMalformedMessage, errFrame.Code)

	// Соединение живо, следующее сообщение проходит
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, conn.WriteJSON(map[string]string{"content": "still here"}))

	var message domain.Message
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, "still here", message.Content)
}

func TestWebSocketRoutingErrorFrame(t *testing.T) {
	srv := newWSServer(t)
	conn := dialWS(t, srv, "/ws/user?phone=%2B79990001122")

	// Пустое сообщение без вложения отклоняется фреймом, не закрытием
	require.NoError(t, conn.WriteJSON(map[string]string{"content": "   "}))

	var errFrame domain.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.True(t, errFrame.Error)
	assert.Equal(t, domain.ErrorCodeMalformedMessage, errFrame.Code)
}

func TestWebSocketStaffReceivesCustomerMessage(t *testing.T) {
	srv := newWSServer(t)

	staffConn := dialWS(t, srv, "/ws/admin?api_key=admin-key-1")
	customerConn := dialWS(t, srv, "/ws/user?phone=%2B79990001122")

	require.NoError(t, customerConn.WriteJSON(map[string]string{"content": "my brakes squeak"}))

	var message domain.Message
	require.NoError(t, staffConn.ReadJSON(&message))
	assert.Equal(t, "customer_1", message.FromUser)
	assert.Equal(t, "my brakes squeak", message.Content)

	// Ответ сотрудника в тот же чат доходит клиенту
	reply, err := json.Marshal(map[string]string{
		"chat_id": message.ChatID.String(),
		"content": "bring the car in",
	})
	require.NoError(t, err)
	require.NoError(t, staffConn.WriteMessage(websocket.TextMessage, reply))

	// Клиент сперва получает эхо собственного сообщения
	var echo domain.Message
	require.NoError(t, customerConn.ReadJSON(&echo))
	assert.Equal(t, "customer_1", echo.FromUser)

	var staffReply domain.Message
	require.NoError(t, customerConn.ReadJSON(&staffReply))
	assert.Equal(t, "admin_1", staffReply.FromUser)
	assert.Equal(t, "bring the car in", staffReply.Content)
	assert.Equal(t, "customer_1", staffReply.ToUser)
}
