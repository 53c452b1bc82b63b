package domain

import (
	"time"

	"github.com/google/uuid"
)

type Chat struct {
	ID          uuid.UUID `json:"chat_id"`
	CustomerID  string    `json:"customer_id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	LastMessage string    `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Заполняются при выборке
	Staff       []string       `json:"staff,omitempty"`
	UnreadCount map[string]int `json:"unread_count,omitempty"`
}

const (
	ChatStatusOpen     = "open"
	ChatStatusArchived = "archived"
)

// ChatSummary — строка списка чатов для панели персонала
type ChatSummary struct {
	ID          uuid.UUID `json:"chat_id"`
	CustomerID  string    `json:"customer_id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	LastMessage string    `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"message_id"`
	ChatID         uuid.UUID `json:"chat_id"`
	FromUser       string    `json:"from_user"`
	ToUser         string    `json:"to_user,omitempty"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	Source         string    `json:"source"`
	FileName       string    `json:"file_name,omitempty"`
	FileURL        string    `json:"local_file_url,omitempty"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeAudio = "audio"
	MessageTypeVoice = "voice"
	MessageTypeVideo = "video"
	MessageTypeFile  = "file"
)

const (
	SourceWeb      = "web"
	SourceTelegram = "telegram"
)

const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// ValidMessageType валидируется на границе роутера, дальше по коду строка
// считается доверенной
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio,
		MessageTypeVoice, MessageTypeVideo, MessageTypeFile:
		return true
	}
	return false
}

func ValidSource(s string) bool {
	return s == SourceWeb || s == SourceTelegram
}
