// Package gateway — доменный слой шлюза: операции, которые HTTP-обработчики
// выполняют над Telegram-сессиями. Web-слой зависит от интерфейса Service,
// поэтому в тестах обработчиков сеть подменяется фейком.
package gateway

import (
	"context"

	"github.com/gotd/td/tg"
)

// UserInfo — данные аккаунта в том виде, в каком их отдаёт HTTP-API.
type UserInfo struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
	Bot       bool   `json:"bot"`
}

// SessionStart — результат создания пользовательской сессии: handle и
// phone_code_hash для последующего подтверждения OTP.
type SessionStart struct {
	SessionHash   string
	PhoneCodeHash string
}

// BotSession — результат создания bot-сессии.
type BotSession struct {
	SessionHash string
	Bot         UserInfo
}

// SignInStatus — исход подтверждения OTP-кода. Вместо исключений/ошибок
// используется помеченный результат: «нужен пароль» и «неверный код» — это
// штатные ветки протокола, а не сбои.
type SignInStatus int

const (
	// SignInAuthorized — код принят, сессия авторизована.
	SignInAuthorized SignInStatus = iota
	// SignInPasswordNeeded — на аккаунте включена двухфакторная аутентификация.
	SignInPasswordNeeded
	// SignInCodeInvalid — присланный код не подошёл.
	SignInCodeInvalid
)

// SignInResult — исход подтверждения OTP; User заполнен только при Authorized.
type SignInResult struct {
	Status SignInStatus
	User   UserInfo
}

// StoryRequest — параметры публикации истории.
type StoryRequest struct {
	FilePath   string
	Spoiler    bool
	TTLSeconds int
}

// Service — операции шлюза над Telegram-сессиями.
type Service interface {
	// SetCredentials запоминает app_id/app_hash для последующих соединений.
	SetCredentials(appID int, appHash string)
	// CreateSession открывает соединение (или возобновляет по existingHandle)
	// и запрашивает OTP-код для номера phone.
	CreateSession(ctx context.Context, phone, existingHandle string) (SessionStart, error)
	// CreateBotSession открывает соединение и авторизует его по bot-токену.
	CreateBotSession(ctx context.Context, token string) (BotSession, error)
	// VerifyOTP подтверждает OTP-код для сессии handle.
	VerifyOTP(ctx context.Context, handle, phone, code, phoneCodeHash string) (SignInResult, error)
	// Verify2FA завершает вход паролем двухфакторной аутентификации.
	Verify2FA(ctx context.Context, handle, password string) (UserInfo, error)
	// SendMessage отправляет текст получателю (числовой id или username).
	SendMessage(ctx context.Context, handle, recipient, message string) (int, error)
	// JoinChannel вступает в публичный канал по username.
	JoinChannel(ctx context.Context, handle, channel string) error
	// SendStory публикует фото историей; требует авторизованной сессии.
	SendStory(ctx context.Context, handle string, story StoryRequest) error
}

// userInfoFrom переводит tg.User в транспортное представление.
func userInfoFrom(user *tg.User) UserInfo {
	if user == nil {
		return UserInfo{}
	}
	return UserInfo{
		ID:        user.ID,
		FirstName: user.FirstName,
		Username:  user.Username,
		Bot:       user.Bot,
	}
}
