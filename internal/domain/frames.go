package domain

// InboundFrame — сообщение клиента по WebSocket.
// Staff обязан указывать chat_id, для клиента оно игнорируется.
type InboundFrame struct {
	ChatID      string `json:"chat_id,omitempty"`
	ToUser      string `json:"to_user,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileURL     string `json:"local_file_url,omitempty"`
}

// ErrorFrame отправляется по соединению, не закрывая его
type ErrorFrame struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrorCodeChatNotFound     = "chat_not_found"
	ErrorCodeNotAssigned      = "not_assigned"
	ErrorCodeMalformedMessage = "malformed_message"
	ErrorCodeInternal         = "internal_error"
)

// Закрывающие коды WebSocket
const (
	CloseNormal      = 1000
	CloseAuthFailed  = 4001
	CloseInvalidUser = 4002
)
