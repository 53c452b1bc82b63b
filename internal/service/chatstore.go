package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"

	"github.com/google/uuid"
)

type ChatStore interface {
	// FindOrCreate возвращает единственный открытый чат клиента, создавая
	// его при первом контакте. Безопасен при одновременных первых
	// сообщениях одного клиента.
	FindOrCreate(ctx context.Context, customer *domain.User) (*domain.Chat, error)
	ChatByID(ctx context.Context, chatID uuid.UUID) (*domain.Chat, error)
	Append(ctx context.Context, message *domain.Message) error
	// Get отдает чат с историей; caller обязан быть участником
	Get(ctx context.Context, chatID uuid.UUID, caller *domain.User, limit, offset int) (*domain.Chat, []*domain.Message, error)
	ListChats(ctx context.Context, caller *domain.User) ([]*domain.ChatSummary, error)
	MarkRead(ctx context.Context, chatID uuid.UUID, caller *domain.User) error
	IncrementUnread(ctx context.Context, chatID uuid.UUID, staffID string) error
	Archive(ctx context.Context, chatID uuid.UUID, caller *domain.User) error
	MarkDeliveryFailed(ctx context.Context, messageID uuid.UUID) error
}

type chatStore struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	log      logger.Logger

	// Ключ — customer_id; сериализует compare-and-create первого контакта
	customerLocks sync.Map
}

func NewChatStore(chatRepo repository.ChatRepository, userRepo repository.UserRepository, log logger.Logger) ChatStore {
	return &chatStore{
		chatRepo: chatRepo,
		userRepo: userRepo,
		log:      log,
	}
}

func (s *chatStore) customerLock(customerID string) *sync.Mutex {
	lock, _ := s.customerLocks.LoadOrStore(customerID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *chatStore) FindOrCreate(ctx context.Context, customer *domain.User) (*domain.Chat, error) {
	mu := s.customerLock(customer.ID)
	mu.Lock()
	defer mu.Unlock()

	chat, err := s.chatRepo.GetOpenByCustomer(ctx, customer.ID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, pkgerrors.ErrChatNotFound) {
		return nil, err
	}

	staff, err := s.userRepo.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	staffIDs := make([]string, 0, len(staff))
	for _, u := range staff {
		staffIDs = append(staffIDs, u.ID)
	}

	title := "Chat with " + customer.ID
	if customer.DisplayName != "" {
		title = "Chat with " + customer.DisplayName
	}

	now := time.Now()
	chat = &domain.Chat{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Title:      title,
		Status:     domain.ChatStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.chatRepo.Create(ctx, chat, staffIDs); err != nil {
		// Гонку закрыл частичный уникальный индекс — перечитываем
		if errors.Is(err, pkgerrors.ErrChatAlreadyExists) {
			return s.chatRepo.GetOpenByCustomer(ctx, customer.ID)
		}
		return nil, err
	}

	s.log.Info("Chat created", "chat_id", chat.ID, "customer_id", customer.ID, "staff", len(staffIDs))
	return chat, nil
}

func (s *chatStore) ChatByID(ctx context.Context, chatID uuid.UUID) (*domain.Chat, error) {
	return s.chatRepo.GetByID(ctx, chatID)
}

func (s *chatStore) Append(ctx context.Context, message *domain.Message) error {
	return s.chatRepo.AppendMessage(ctx, message)
}

func (s *chatStore) Get(ctx context.Context, chatID uuid.UUID, caller *domain.User, limit, offset int) (*domain.Chat, []*domain.Message, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}

	if !isParticipant(chat, caller) {
		return nil, nil, pkgerrors.ErrNotAssigned
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	messages, err := s.chatRepo.ListMessages(ctx, chatID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	return chat, messages, nil
}

func (s *chatStore) ListChats(ctx context.Context, caller *domain.User) ([]*domain.ChatSummary, error) {
	if caller.IsStaff() {
		return s.chatRepo.ListForStaff(ctx, caller.ID)
	}
	return s.chatRepo.ListForCustomer(ctx, caller.ID)
}

func (s *chatStore) MarkRead(ctx context.Context, chatID uuid.UUID, caller *domain.User) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !caller.IsStaff() || !isAssigned(chat, caller.ID) {
		return pkgerrors.ErrNotAssigned
	}

	return s.chatRepo.ResetUnread(ctx, chatID, caller.ID)
}

func (s *chatStore) Archive(ctx context.Context, chatID uuid.UUID, caller *domain.User) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !caller.IsStaff() || !isAssigned(chat, caller.ID) {
		return pkgerrors.ErrNotAssigned
	}

	if err := s.chatRepo.Archive(ctx, chatID); err != nil {
		return err
	}

	s.log.Info("Chat archived", "chat_id", chatID, "staff_id", caller.ID)
	return nil
}

func (s *chatStore) IncrementUnread(ctx context.Context, chatID uuid.UUID, staffID string) error {
	return s.chatRepo.IncrementUnread(ctx, chatID, staffID)
}

func (s *chatStore) MarkDeliveryFailed(ctx context.Context, messageID uuid.UUID) error {
	return s.chatRepo.SetDeliveryStatus(ctx, messageID, domain.DeliveryStatusFailed)
}

func isAssigned(chat *domain.Chat, staffID string) bool {
	for _, id := range chat.Staff {
		if id == staffID {
			return true
		}
	}
	return false
}

func isParticipant(chat *domain.Chat, user *domain.User) bool {
	if user.ID == chat.CustomerID {
		return true
	}
	return user.IsStaff() && isAssigned(chat, user.ID)
}
