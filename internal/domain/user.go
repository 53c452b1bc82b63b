package domain

import (
	"strconv"
	"strings"
	"time"
)

type User struct {
	ID          string    `json:"user_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	APIKey      string    `json:"-"`
	Phone       string    `json:"phone,omitempty"`
	TelegramID  int64     `json:"telegram_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	RoleAdmin    = "admin"
	RoleMechanic = "mechanic"
	RoleCustomer = "customer"
)

func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleMechanic
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleMechanic, RoleCustomer:
		return true
	}
	return false
}

// LooksLikeUserID проверяет, что строка синтаксически похожа на идентификатор
// пользователя (префикс роли или telegram_). Нужна, чтобы отличить
// "пользователь не найден" (4002) от "кривые учетные данные" (4001).
func LooksLikeUserID(id string) bool {
	for _, prefix := range []string{"admin_", "mechanic_", "customer_", "telegram_"} {
		if strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
			return true
		}
	}
	return false
}

// TelegramUserID строит идентификатор клиента, пришедшего через Telegram
func TelegramUserID(chatID int64) string {
	return "telegram_" + strconv.FormatInt(chatID, 10)
}
