package repository

import (
	"context"
	"errors"
	"fmt"

	"support_chat/internal/domain"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat, staffIDs []string) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Chat, error)
	GetOpenByCustomer(ctx context.Context, customerID string) (*domain.Chat, error)
	AppendMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	ListForStaff(ctx context.Context, staffID string) ([]*domain.ChatSummary, error)
	ListForCustomer(ctx context.Context, customerID string) ([]*domain.ChatSummary, error)
	IncrementUnread(ctx context.Context, chatID uuid.UUID, staffID string) error
	ResetUnread(ctx context.Context, chatID uuid.UUID, staffID string) error
	SetDeliveryStatus(ctx context.Context, messageID uuid.UUID, status string) error
	Archive(ctx context.Context, chatID uuid.UUID) error
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat, staffIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO chats (id, customer_id, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.Exec(ctx, query,
		chat.ID, chat.CustomerID, chat.Title, chat.Status, chat.CreatedAt, chat.UpdatedAt,
	)
	if err != nil {
		// Частичный уникальный индекс по (customer_id) WHERE status='open':
		// второй одновременный первый контакт клиента упрется сюда
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.log.Warn("Open chat already exists for customer", "customer_id", chat.CustomerID)
			return pkgerrors.ErrChatAlreadyExists
		}
		r.log.Error("Failed to create chat", "error", err, "customer_id", chat.CustomerID)
		return fmt.Errorf("create chat: %w", err)
	}

	for _, staffID := range staffIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_staff (chat_id, staff_id, unread_count) VALUES ($1, $2, 0)`,
			chat.ID, staffID,
		)
		if err != nil {
			r.log.Error("Failed to assign staff to chat", "error", err, "chat_id", chat.ID, "staff_id", staffID)
			return fmt.Errorf("assign staff: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chat: %w", err)
	}

	chat.Staff = append([]string(nil), staffIDs...)
	return nil
}

func (r *chatRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	query := `
		SELECT id, customer_id, title, status, COALESCE(last_message, ''), created_at, updated_at
		FROM chats
		WHERE id = $1
	`

	chat := &domain.Chat{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&chat.ID, &chat.CustomerID, &chat.Title, &chat.Status, &chat.LastMessage, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrChatNotFound
		}
		r.log.Error("Failed to get chat", "error", err, "chat_id", id)
		return nil, fmt.Errorf("get chat: %w", err)
	}

	if err := r.loadStaff(ctx, chat); err != nil {
		return nil, err
	}

	return chat, nil
}

func (r *chatRepository) GetOpenByCustomer(ctx context.Context, customerID string) (*domain.Chat, error) {
	query := `
		SELECT id, customer_id, title, status, COALESCE(last_message, ''), created_at, updated_at
		FROM chats
		WHERE customer_id = $1 AND status = $2
	`

	chat := &domain.Chat{}
	err := r.db.QueryRow(ctx, query, customerID, domain.ChatStatusOpen).Scan(
		&chat.ID, &chat.CustomerID, &chat.Title, &chat.Status, &chat.LastMessage, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrChatNotFound
		}
		r.log.Error("Failed to get open chat", "error", err, "customer_id", customerID)
		return nil, fmt.Errorf("get open chat: %w", err)
	}

	if err := r.loadStaff(ctx, chat); err != nil {
		return nil, err
	}

	return chat, nil
}

func (r *chatRepository) loadStaff(ctx context.Context, chat *domain.Chat) error {
	rows, err := r.db.Query(ctx,
		`SELECT staff_id, unread_count FROM chat_staff WHERE chat_id = $1 ORDER BY staff_id`,
		chat.ID,
	)
	if err != nil {
		r.log.Error("Failed to load chat staff", "error", err, "chat_id", chat.ID)
		return fmt.Errorf("load chat staff: %w", err)
	}
	defer rows.Close()

	chat.Staff = nil
	chat.UnreadCount = make(map[string]int)
	for rows.Next() {
		var staffID string
		var unread int
		if err := rows.Scan(&staffID, &unread); err != nil {
			return err
		}
		chat.Staff = append(chat.Staff, staffID)
		chat.UnreadCount[staffID] = unread
	}

	return rows.Err()
}

func (r *chatRepository) AppendMessage(ctx context.Context, message *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO messages (id, chat_id, from_user, to_user, content, message_type, source,
			file_name, file_url, delivery_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)
	`

	_, err = tx.Exec(ctx, query,
		message.ID, message.ChatID, message.FromUser, message.ToUser, message.Content,
		message.MessageType, message.Source, message.FileName, message.FileURL,
		message.DeliveryStatus, message.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503 = foreign_key_violation: чата нет, это нарушение контракта роутера
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			r.log.Error("Append to unknown chat", "chat_id", message.ChatID)
			return pkgerrors.ErrInternal
		}
		r.log.Error("Failed to append message", "error", err, "chat_id", message.ChatID)
		return fmt.Errorf("append message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE chats SET last_message = $2, updated_at = $3 WHERE id = $1`,
		message.ChatID, message.Content, message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to bump chat activity", "error", err, "chat_id", message.ChatID)
		return fmt.Errorf("bump chat: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT id, chat_id, from_user, COALESCE(to_user, ''), content, message_type, source,
			COALESCE(file_name, ''), COALESCE(file_url, ''), delivery_status, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID, &m.ChatID, &m.FromUser, &m.ToUser, &m.Content, &m.MessageType, &m.Source,
			&m.FileName, &m.FileURL, &m.DeliveryStatus, &m.CreatedAt,
		); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (r *chatRepository) ListForStaff(ctx context.Context, staffID string) ([]*domain.ChatSummary, error) {
	query := `
		SELECT c.id, c.customer_id, c.title, c.status, COALESCE(c.last_message, ''), cs.unread_count, c.updated_at
		FROM chats c
		JOIN chat_staff cs ON cs.chat_id = c.id
		WHERE cs.staff_id = $1
		ORDER BY c.updated_at DESC
	`

	return r.listSummaries(ctx, query, staffID)
}

func (r *chatRepository) ListForCustomer(ctx context.Context, customerID string) ([]*domain.ChatSummary, error) {
	query := `
		SELECT id, customer_id, title, status, COALESCE(last_message, ''), 0, updated_at
		FROM chats
		WHERE customer_id = $1 AND status = $2
		ORDER BY updated_at DESC
	`

	return r.listSummaries(ctx, query, customerID, domain.ChatStatusOpen)
}

func (r *chatRepository) listSummaries(ctx context.Context, query string, args ...any) ([]*domain.ChatSummary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list chats", "error", err)
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.ChatSummary
	for rows.Next() {
		s := &domain.ChatSummary{}
		if err := rows.Scan(
			&s.ID, &s.CustomerID, &s.Title, &s.Status, &s.LastMessage, &s.UnreadCount, &s.UpdatedAt,
		); err != nil {
			r.log.Error("Failed to scan chat summary", "error", err)
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func (r *chatRepository) IncrementUnread(ctx context.Context, chatID uuid.UUID, staffID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE chat_staff SET unread_count = unread_count + 1 WHERE chat_id = $1 AND staff_id = $2`,
		chatID, staffID,
	)
	if err != nil {
		r.log.Error("Failed to increment unread", "error", err, "chat_id", chatID, "staff_id", staffID)
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

func (r *chatRepository) ResetUnread(ctx context.Context, chatID uuid.UUID, staffID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE chat_staff SET unread_count = 0 WHERE chat_id = $1 AND staff_id = $2`,
		chatID, staffID,
	)
	if err != nil {
		r.log.Error("Failed to reset unread", "error", err, "chat_id", chatID, "staff_id", staffID)
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

func (r *chatRepository) SetDeliveryStatus(ctx context.Context, messageID uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE messages SET delivery_status = $2 WHERE id = $1`,
		messageID, status,
	)
	if err != nil {
		r.log.Error("Failed to set delivery status", "error", err, "message_id", messageID)
		return fmt.Errorf("set delivery status: %w", err)
	}
	return nil
}

func (r *chatRepository) Archive(ctx context.Context, chatID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE chats SET status = $2, updated_at = NOW() WHERE id = $1`,
		chatID, domain.ChatStatusArchived,
	)
	if err != nil {
		r.log.Error("Failed to archive chat", "error", err, "chat_id", chatID)
		return fmt.Errorf("archive chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrChatNotFound
	}
	return nil
}
