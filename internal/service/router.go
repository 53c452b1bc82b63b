package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"

	"github.com/google/uuid"
)

// ExternalSender — исходящий путь моста во внешнюю платформу
type ExternalSender interface {
	SendToCustomer(ctx context.Context, customer *domain.User, message *domain.Message) error
}

type MessageRouter interface {
	// RouteInbound — единственная точка изменения состояния чатов:
	// append в хранилище, fan-out по живым соединениям, непрочитанные,
	// передача мосту. Возвращает каноническое сообщение.
	RouteInbound(ctx context.Context, frame *domain.InboundFrame, sender *domain.User, source string) (*domain.Message, error)
	SetExternalSender(sender ExternalSender)
}

type chatLane struct {
	mu     sync.Mutex
	lastTS time.Time
}

type messageRouter struct {
	store    ChatStore
	registry ConnectionRegistry
	userRepo repository.UserRepository
	log      logger.Logger

	mu       sync.RWMutex
	external ExternalSender

	// Ключ — chat_id: у каждого чата один логический писатель,
	// несвязанные чаты идут параллельно
	lanes sync.Map
}

func NewMessageRouter(store ChatStore, registry ConnectionRegistry, userRepo repository.UserRepository, log logger.Logger) MessageRouter {
	return &messageRouter{
		store:    store,
		registry: registry,
		userRepo: userRepo,
		log:      log,
	}
}

func (r *messageRouter) SetExternalSender(sender ExternalSender) {
	r.mu.Lock()
	r.external = sender
	r.mu.Unlock()
}

func (r *messageRouter) externalSender() ExternalSender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.external
}

func (r *messageRouter) lane(chatID uuid.UUID) *chatLane {
	lane, _ := r.lanes.LoadOrStore(chatID, &chatLane{})
	return lane.(*chatLane)
}

func (r *messageRouter) RouteInbound(ctx context.Context, frame *domain.InboundFrame, sender *domain.User, source string) (*domain.Message, error) {
	if err := validateFrame(frame, source); err != nil {
		return nil, err
	}

	chat, err := r.resolveChat(ctx, frame, sender)
	if err != nil {
		return nil, err
	}

	lane := r.lane(chat.ID)
	lane.mu.Lock()
	defer lane.mu.Unlock()

	message := r.buildMessage(frame, sender, chat, source, lane)

	if err := r.store.Append(ctx, message); err != nil {
		if errors.Is(err, pkgerrors.ErrInternal) {
			r.log.Error("Append invariant violation", "chat_id", chat.ID, "message_id", message.ID)
			return nil, pkgerrors.ErrInternal
		}
		return nil, err
	}

	r.bumpUnread(ctx, chat, sender)
	r.fanOut(chat, message)
	r.forwardExternal(ctx, chat, sender, message)

	return message, nil
}

func validateFrame(frame *domain.InboundFrame, source string) error {
	if !domain.ValidSource(source) {
		return pkgerrors.ErrMalformedMessage
	}
	if frame.MessageType == "" {
		frame.MessageType = domain.MessageTypeText
	}
	if !domain.ValidMessageType(frame.MessageType) {
		return pkgerrors.ErrMalformedMessage
	}
	if strings.TrimSpace(frame.Content) == "" && frame.FileURL == "" {
		return pkgerrors.ErrMalformedMessage
	}
	return nil
}

func (r *messageRouter) resolveChat(ctx context.Context, frame *domain.InboundFrame, sender *domain.User) (*domain.Chat, error) {
	if sender.Role == domain.RoleCustomer {
		return r.store.FindOrCreate(ctx, sender)
	}

	// Staff обязан явно указать чат, угадывание по последней активности
	// ведет к неверной маршрутизации
	if strings.TrimSpace(frame.ChatID) == "" {
		return nil, pkgerrors.ErrMalformedMessage
	}
	chatID, err := uuid.Parse(frame.ChatID)
	if err != nil {
		return nil, pkgerrors.ErrMalformedMessage
	}

	chat, err := r.store.ChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !isAssigned(chat, sender.ID) {
		return nil, pkgerrors.ErrNotAssigned
	}

	return chat, nil
}

// buildMessage присваивает серверные id и метку времени: порядок в чате
// определяет роутер, а не клиентские timestamps. Метка не убывает в
// пределах lane даже при скачке часов назад.
func (r *messageRouter) buildMessage(frame *domain.InboundFrame, sender *domain.User, chat *domain.Chat, source string, lane *chatLane) *domain.Message {
	ts := time.Now()
	if ts.Before(lane.lastTS) {
		ts = lane.lastTS
	}
	lane.lastTS = ts

	toUser := strings.TrimSpace(frame.ToUser)
	if toUser == "" && sender.IsStaff() {
		toUser = chat.CustomerID
	}

	return &domain.Message{
		ID:             uuid.New(),
		ChatID:         chat.ID,
		FromUser:       sender.ID,
		ToUser:         toUser,
		Content:        frame.Content,
		MessageType:    frame.MessageType,
		Source:         source,
		FileName:       frame.FileName,
		FileURL:        frame.FileURL,
		DeliveryStatus: domain.DeliveryStatusDelivered,
		CreatedAt:      ts,
	}
}

// bumpUnread увеличивает счетчик каждому назначенному сотруднику без
// единого живого соединения. Сброс — только явным read-подтверждением.
func (r *messageRouter) bumpUnread(ctx context.Context, chat *domain.Chat, sender *domain.User) {
	for _, staffID := range chat.Staff {
		if staffID == sender.ID {
			continue
		}
		if r.registry.HasConnections(staffID) {
			continue
		}
		if err := r.store.IncrementUnread(ctx, chat.ID, staffID); err != nil {
			r.log.Error("Failed to increment unread", "error", err, "chat_id", chat.ID, "staff_id", staffID)
		}
	}
}

// fanOut раздает сообщение всем живым соединениям участников, включая
// остальные устройства отправителя (клиент сам гасит собственное эхо).
// Отказ одного соединения изолирован: лениво убираем его из реестра.
func (r *messageRouter) fanOut(chat *domain.Chat, message *domain.Message) {
	for _, conn := range r.registry.ConnectionsWatching(chat) {
		if err := conn.Channel.TrySend(message); err != nil {
			r.log.Warn("Fan-out send failed, dropping connection", "user_id", conn.User.ID, "error", err)
			r.registry.Remove(conn)
			conn.Channel.Close(domain.CloseNormal, "send queue saturated")
		}
	}
}

// forwardExternal передает ответ сотрудника мосту, если клиент чата
// пришел из внешней платформы. Ошибки доставки мост фиксирует на самом
// сообщении, назад они не поднимаются.
func (r *messageRouter) forwardExternal(ctx context.Context, chat *domain.Chat, sender *domain.User, message *domain.Message) {
	if !sender.IsStaff() {
		return
	}
	external := r.externalSender()
	if external == nil {
		return
	}

	customer, err := r.userRepo.GetByID(ctx, chat.CustomerID)
	if err != nil {
		r.log.Error("Failed to load chat customer", "error", err, "chat_id", chat.ID)
		return
	}
	if customer.TelegramID == 0 {
		return
	}

	go func() {
		if err := external.SendToCustomer(context.Background(), customer, message); err != nil {
			r.log.Warn("External delivery failed", "chat_id", chat.ID, "message_id", message.ID, "error", err)
		}
	}()
}
