package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"support_chat/internal/domain"
	"support_chat/internal/service"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 64
)

var errSendQueueFull = errors.New("send queue full")

// wsChannel — исходящая сторона соединения. Одна горутина writePump
// пишет в сокет, TrySend лишь кладет в ограниченную очередь.
type wsChannel struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		conn: conn,
		send: make(chan any, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *wsChannel) TrySend(v any) error {
	select {
	case <-c.done:
		// Отправка в уже закрытое соединение молча отбрасывается
		return nil
	case c.send <- v:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *wsChannel) Close(code int, reason string) {
	c.once.Do(func() {
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
	})
}

func (c *wsChannel) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
}

type WebSocketHandler struct {
	identity service.IdentityService
	registry service.ConnectionRegistry
	router   service.MessageRouter
	log      logger.Logger
}

func NewWebSocketHandler(identity service.IdentityService, registry service.ConnectionRegistry, router service.MessageRouter, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		identity: identity,
		registry: registry,
		router:   router,
		log:      log,
	}
}

// HandleStaff — duplex endpoint персонала (api_key или token в query)
func (h *WebSocketHandler) HandleStaff(c *gin.Context) {
	h.handle(c, true)
}

// HandleCustomer — duplex endpoint клиентов (phone или token в query)
func (h *WebSocketHandler) HandleCustomer(c *gin.Context) {
	h.handle(c, false)
}

func (h *WebSocketHandler) handle(c *gin.Context, wantStaff bool) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	cred := service.Credential{
		UserID: c.Query("user_id"),
		Token:  c.Query("token"),
		APIKey: c.Query("api_key"),
		Phone:  c.Query("phone"),
	}

	// CONNECTING -> AUTHENTICATED -> OPEN; провал аутентификации
	// закрывает 4001, несуществующий пользователь — 4002
	user, err := h.identity.Resolve(c.Request.Context(), cred, wantStaff)
	if err != nil {
		code := domain.CloseAuthFailed
		if errors.Is(err, pkgerrors.ErrInvalidUser) {
			code = domain.CloseInvalidUser
		}
		h.log.Warn("Connection rejected", "close_code", code, "error", err)
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()), deadline)
		conn.Close()
		return
	}

	ch := newWSChannel(conn)
	go ch.writePump()

	handle := h.registry.Admit(user, ch)
	defer func() {
		h.registry.Remove(handle)
		ch.Close(domain.CloseNormal, "")
	}()

	h.readLoop(c, conn, user, ch)
}

func (h *WebSocketHandler) readLoop(c *gin.Context, conn *websocket.Conn, user *domain.User, ch *wsChannel) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Удаленное закрытие или ошибка ввода-вывода
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Read loop finished", "user_id", user.ID, "error", err)
			}
			return
		}

		var frame domain.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = ch.TrySend(&domain.ErrorFrame{
				Error:   true,
				Code:    domain.ErrorCodeMalformedMessage,
				Message: "unparseable frame",
			})
			continue
		}

		if _, err := h.router.RouteInbound(c.Request.Context(), &frame, user, domain.SourceWeb); err != nil {
			// Ошибка маршрутизации уходит фреймом, соединение живет
			_ = ch.TrySend(errorFrame(err))
		}
	}
}

func errorFrame(err error) *domain.ErrorFrame {
	code := domain.ErrorCodeInternal
	switch {
	case errors.Is(err, pkgerrors.ErrChatNotFound):
		code = domain.ErrorCodeChatNotFound
	case errors.Is(err, pkgerrors.ErrNotAssigned):
		code = domain.ErrorCodeNotAssigned
	case errors.Is(err, pkgerrors.ErrMalformedMessage):
		code = domain.ErrorCodeMalformedMessage
	}

	return &domain.ErrorFrame{
		Error:   true,
		Code:    code,
		Message: err.Error(),
	}
}
