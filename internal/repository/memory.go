package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"support_chat/internal/domain"
	pkgerrors "support_chat/pkg/errors"

	"github.com/google/uuid"
)

// In-memory реализации репозиториев. Используются в тестах сервисов и
// хендлеров вместо Postgres; поведение по ошибкам повторяет pgx-реализации.

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*domain.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return pkgerrors.ErrUserAlreadyExists
	}
	for _, existing := range r.users {
		if user.APIKey != "" && existing.APIKey == user.APIKey {
			return pkgerrors.ErrUserAlreadyExists
		}
		if user.Phone != "" && existing.Phone == user.Phone {
			return pkgerrors.ErrUserAlreadyExists
		}
		if user.TelegramID != 0 && existing.TelegramID == user.TelegramID {
			return pkgerrors.ErrUserAlreadyExists
		}
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user, ok := r.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *MemoryUserRepository) GetByAPIKey(_ context.Context, apiKey string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return apiKey != "" && u.APIKey == apiKey })
}

func (r *MemoryUserRepository) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return phone != "" && u.Phone == phone })
}

func (r *MemoryUserRepository) GetByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return telegramID != 0 && u.TelegramID == telegramID })
}

func (r *MemoryUserRepository) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if match(user) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *MemoryUserRepository) ListStaff(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var staff []*domain.User
	for _, user := range r.users {
		if user.IsStaff() {
			clone := *user
			staff = append(staff, &clone)
		}
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
	return staff, nil
}

type memoryChatState struct {
	chat     domain.Chat
	staff    []string
	unread   map[string]int
	messages []domain.Message
}

type MemoryChatRepository struct {
	mu    sync.RWMutex
	chats map[uuid.UUID]*memoryChatState
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{chats: make(map[uuid.UUID]*memoryChatState)}
}

func (r *MemoryChatRepository) Create(_ context.Context, chat *domain.Chat, staffIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, state := range r.chats {
		if state.chat.CustomerID == chat.CustomerID && state.chat.Status == domain.ChatStatusOpen {
			return pkgerrors.ErrChatAlreadyExists
		}
	}

	state := &memoryChatState{
		chat:   *chat,
		staff:  append([]string(nil), staffIDs...),
		unread: make(map[string]int),
	}
	for _, staffID := range staffIDs {
		state.unread[staffID] = 0
	}
	r.chats[chat.ID] = state

	chat.Staff = append([]string(nil), staffIDs...)
	return nil
}

func (r *MemoryChatRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.chats[id]
	if !ok {
		return nil, pkgerrors.ErrChatNotFound
	}
	return state.snapshot(), nil
}

func (r *MemoryChatRepository) GetOpenByCustomer(_ context.Context, customerID string) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, state := range r.chats {
		if state.chat.CustomerID == customerID && state.chat.Status == domain.ChatStatusOpen {
			return state.snapshot(), nil
		}
	}
	return nil, pkgerrors.ErrChatNotFound
}

func (s *memoryChatState) snapshot() *domain.Chat {
	chat := s.chat
	chat.Staff = append([]string(nil), s.staff...)
	chat.UnreadCount = make(map[string]int, len(s.unread))
	for k, v := range s.unread {
		chat.UnreadCount[k] = v
	}
	return &chat
}

func (r *MemoryChatRepository) AppendMessage(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.chats[message.ChatID]
	if !ok {
		return pkgerrors.ErrInternal
	}

	state.messages = append(state.messages, *message)
	state.chat.LastMessage = message.Content
	state.chat.UpdatedAt = message.CreatedAt
	return nil
}

func (r *MemoryChatRepository) ListMessages(_ context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.chats[chatID]
	if !ok {
		return nil, pkgerrors.ErrChatNotFound
	}

	var messages []*domain.Message
	for i := offset; i < len(state.messages) && len(messages) < limit; i++ {
		clone := state.messages[i]
		messages = append(messages, &clone)
	}
	return messages, nil
}

func (r *MemoryChatRepository) ListForStaff(_ context.Context, staffID string) ([]*domain.ChatSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var summaries []*domain.ChatSummary
	for _, state := range r.chats {
		unread, assigned := state.unread[staffID]
		if !assigned {
			continue
		}
		summaries = append(summaries, &domain.ChatSummary{
			ID:          state.chat.ID,
			CustomerID:  state.chat.CustomerID,
			Title:       state.chat.Title,
			Status:      state.chat.Status,
			LastMessage: state.chat.LastMessage,
			UnreadCount: unread,
			UpdatedAt:   state.chat.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (r *MemoryChatRepository) ListForCustomer(_ context.Context, customerID string) ([]*domain.ChatSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var summaries []*domain.ChatSummary
	for _, state := range r.chats {
		if state.chat.CustomerID != customerID || state.chat.Status != domain.ChatStatusOpen {
			continue
		}
		summaries = append(summaries, &domain.ChatSummary{
			ID:          state.chat.ID,
			CustomerID:  state.chat.CustomerID,
			Title:       state.chat.Title,
			Status:      state.chat.Status,
			LastMessage: state.chat.LastMessage,
			UpdatedAt:   state.chat.UpdatedAt,
		})
	}
	return summaries, nil
}

func (r *MemoryChatRepository) IncrementUnread(_ context.Context, chatID uuid.UUID, staffID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.chats[chatID]
	if !ok {
		return pkgerrors.ErrChatNotFound
	}
	if _, assigned := state.unread[staffID]; assigned {
		state.unread[staffID]++
	}
	return nil
}

func (r *MemoryChatRepository) ResetUnread(_ context.Context, chatID uuid.UUID, staffID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.chats[chatID]
	if !ok {
		return pkgerrors.ErrChatNotFound
	}
	if _, assigned := state.unread[staffID]; assigned {
		state.unread[staffID] = 0
	}
	return nil
}

func (r *MemoryChatRepository) SetDeliveryStatus(_ context.Context, messageID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, state := range r.chats {
		for i := range state.messages {
			if state.messages[i].ID == messageID {
				state.messages[i].DeliveryStatus = status
				return nil
			}
		}
	}
	return pkgerrors.ErrNotFound
}

func (r *MemoryChatRepository) Archive(_ context.Context, chatID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.chats[chatID]
	if !ok {
		return pkgerrors.ErrChatNotFound
	}
	state.chat.Status = domain.ChatStatusArchived
	state.chat.UpdatedAt = time.Now()
	return nil
}
