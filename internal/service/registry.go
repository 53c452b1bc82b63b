package service

import (
	"sync"
	"time"

	"support_chat/internal/domain"
	"support_chat/pkg/logger"

	"github.com/google/uuid"
)

// Channel — исходящая сторона живого duplex-соединения.
// TrySend не блокируется: при переполненной очереди возвращает ошибку,
// и соединение считается нездоровым.
type Channel interface {
	TrySend(v any) error
	Close(code int, reason string)
}

// Connection — одно живое соединение, владеет им реестр
type Connection struct {
	ID          uuid.UUID
	User        *domain.User
	Channel     Channel
	ConnectedAt time.Time
}

type ConnectionRegistry interface {
	Admit(user *domain.User, ch Channel) *Connection
	// Remove идемпотентен: повторное удаление — no-op
	Remove(conn *Connection)
	// ConnectionsFor возвращает снимок на момент вызова; соединение может
	// закрыться между снимком и отправкой
	ConnectionsFor(userID string) []*Connection
	ConnectionsWatching(chat *domain.Chat) []*Connection
	HasConnections(userID string) bool
}

type connectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	log         logger.Logger
}

func NewConnectionRegistry(log logger.Logger) ConnectionRegistry {
	return &connectionRegistry{
		connections: make(map[string]map[*Connection]struct{}),
		log:         log,
	}
}

func (r *connectionRegistry) Admit(user *domain.User, ch Channel) *Connection {
	conn := &Connection{
		ID:          uuid.New(),
		User:        user,
		Channel:     ch,
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	set, ok := r.connections[user.ID]
	if !ok {
		set = make(map[*Connection]struct{})
		r.connections[user.ID] = set
	}
	set[conn] = struct{}{}
	total := len(set)
	r.mu.Unlock()

	r.log.Info("Connection admitted", "user_id", user.ID, "role", user.Role, "connections", total)
	return conn
}

func (r *connectionRegistry) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	set, ok := r.connections[conn.User.ID]
	if ok {
		if _, present := set[conn]; !present {
			ok = false
		} else {
			delete(set, conn)
			if len(set) == 0 {
				delete(r.connections, conn.User.ID)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("Connection removed", "user_id", conn.User.ID)
	}
}

func (r *connectionRegistry) ConnectionsFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.connections[userID]
	if len(set) == 0 {
		return nil
	}

	snapshot := make([]*Connection, 0, len(set))
	for conn := range set {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

func (r *connectionRegistry) ConnectionsWatching(chat *domain.Chat) []*Connection {
	participants := make([]string, 0, len(chat.Staff)+1)
	participants = append(participants, chat.CustomerID)
	participants = append(participants, chat.Staff...)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var snapshot []*Connection
	seen := make(map[string]struct{}, len(participants))
	for _, userID := range participants {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for conn := range r.connections[userID] {
			snapshot = append(snapshot, conn)
		}
	}
	return snapshot
}

func (r *connectionRegistry) HasConnections(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID]) > 0
}
