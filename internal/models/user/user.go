package user

import "time"

const ProviderPassword = "password"

// User повторяет профиль провайдера аутентификации.
type User struct {
	ID             string    `json:"id" db:"id"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	Email          string    `json:"email" db:"email"`
	PhotoURL       string    `json:"photo_url,omitempty" db:"photo_url"`
	Provider       string    `json:"provider" db:"provider"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	PasswordHash   string    `json:"-" db:"password_hash"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
