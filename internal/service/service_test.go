package service

import (
	"errors"
	"sync"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
	"support_chat/pkg/logger"
)

var errSendRejected = errors.New("send rejected")

// Общие фикстуры тестов сервисного слоя. Вместо Postgres — in-memory
// репозитории с тем же поведением по ошибкам.

type testEnv struct {
	users    *repository.MemoryUserRepository
	chats    *repository.MemoryChatRepository
	registry ConnectionRegistry
	store    ChatStore
	router   MessageRouter
}

func newTestEnv() *testEnv {
	log := logger.New("error")
	users := repository.NewMemoryUserRepository()
	chats := repository.NewMemoryChatRepository()
	registry := NewConnectionRegistry(log)
	store := NewChatStore(chats, users, log)
	router := NewMessageRouter(store, registry, users, log)

	return &testEnv{
		users:    users,
		chats:    chats,
		registry: registry,
		store:    store,
		router:   router,
	}
}

func testAdmin() *domain.User {
	return &domain.User{
		ID:          "admin_1",
		Role:        domain.RoleAdmin,
		DisplayName: "Admin One",
		APIKey:      "admin-key-1",
	}
}

func testMechanic() *domain.User {
	return &domain.User{
		ID:          "mechanic_1",
		Role:        domain.RoleMechanic,
		DisplayName: "Mechanic One",
		APIKey:      "mechanic-key-1",
	}
}

func testCustomer() *domain.User {
	return &domain.User{
		ID:          "customer_1",
		Role:        domain.RoleCustomer,
		DisplayName: "Customer One",
		Phone:       "+79990001122",
	}
}

// fakeChannel собирает отправленные payload и фиксирует закрытие
type fakeChannel struct {
	mu        sync.Mutex
	sent      []any
	failSend  bool
	closed    bool
	closeCode int
}

func (c *fakeChannel) TrySend(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failSend {
		return errSendRejected
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeChannel) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.closeCode = code
}

func (c *fakeChannel) messages() []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*domain.Message
	for _, v := range c.sent {
		if m, ok := v.(*domain.Message); ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeChannel) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}
