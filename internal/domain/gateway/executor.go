package gateway

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/telegram/sessions"
)

// Executor реализует Service поверх реестра сессий.
type Executor struct {
	sessions *sessions.Manager
}

var _ Service = (*Executor)(nil)

// NewExecutor связывает доменный слой с реестром сессий.
func NewExecutor(manager *sessions.Manager) *Executor {
	return &Executor{sessions: manager}
}

// SetCredentials запоминает учётные данные Telegram API в реестре.
func (e *Executor) SetCredentials(appID int, appHash string) {
	e.sessions.SetCredentials(appID, appHash)
	logger.Info("telegram api credentials updated")
}

// CreateSession открывает (или возобновляет) соединение и запрашивает OTP-код.
func (e *Executor) CreateSession(ctx context.Context, phone, existingHandle string) (SessionStart, error) {
	handle, err := e.sessions.CreateClient(ctx, existingHandle)
	if err != nil {
		return SessionStart{}, err
	}
	client, err := e.sessions.Client(handle)
	if err != nil {
		return SessionStart{}, err
	}
	codeHash, err := client.SendCode(ctx, phone)
	if err != nil {
		return SessionStart{}, err
	}
	return SessionStart{SessionHash: handle, PhoneCodeHash: codeHash}, nil
}

// CreateBotSession открывает соединение, авторизует его по токену и
// возвращает handle вместе с данными бота.
func (e *Executor) CreateBotSession(ctx context.Context, token string) (BotSession, error) {
	handle, err := e.sessions.CreateBotClient(ctx, token)
	if err != nil {
		return BotSession{}, err
	}
	client, err := e.sessions.Client(handle)
	if err != nil {
		return BotSession{}, err
	}
	self, err := client.Self(ctx)
	if err != nil {
		return BotSession{}, err
	}
	return BotSession{SessionHash: handle, Bot: userInfoFrom(self)}, nil
}

// VerifyOTP подтверждает код и классифицирует штатные исходы протокола
// в помеченный результат; остальные ошибки уходят наверх как есть.
func (e *Executor) VerifyOTP(ctx context.Context, handle, phone, code, phoneCodeHash string) (SignInResult, error) {
	client, err := e.sessions.Client(handle)
	if err != nil {
		return SignInResult{}, err
	}

	user, err := client.SignInCode(ctx, phone, code, phoneCodeHash)
	return classifySignIn(user, err)
}

// classifySignIn переводит исход подтверждения кода в помеченный результат.
// «Нужен пароль» и «неверный код» — штатные ветки протокола, остальные ошибки
// уходят наверх как есть.
func classifySignIn(user *tg.User, err error) (SignInResult, error) {
	switch {
	case err == nil:
		return SignInResult{Status: SignInAuthorized, User: userInfoFrom(user)}, nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return SignInResult{Status: SignInPasswordNeeded}, nil
	case tgerr.Is(err, "PHONE_CODE_INVALID"):
		return SignInResult{Status: SignInCodeInvalid}, nil
	default:
		return SignInResult{}, err
	}
}

// Verify2FA завершает вход паролем двухфакторной аутентификации.
func (e *Executor) Verify2FA(ctx context.Context, handle, password string) (UserInfo, error) {
	client, err := e.sessions.Client(handle)
	if err != nil {
		return UserInfo{}, err
	}
	user, err := client.SignInPassword(ctx, password)
	if err != nil {
		return UserInfo{}, err
	}
	return userInfoFrom(user), nil
}

// SendMessage отправляет текст получателю от имени сессии handle.
func (e *Executor) SendMessage(ctx context.Context, handle, recipient, message string) (int, error) {
	client, err := e.sessions.Client(handle)
	if err != nil {
		return 0, err
	}
	return client.SendMessage(ctx, recipient, message)
}

// JoinChannel вступает в публичный канал от имени сессии handle.
func (e *Executor) JoinChannel(ctx context.Context, handle, channel string) error {
	client, err := e.sessions.Client(handle)
	if err != nil {
		return err
	}
	return client.JoinChannel(ctx, channel)
}

// SendStory публикует историю; неавторизованная сессия — ErrNotAuthorized.
func (e *Executor) SendStory(ctx context.Context, handle string, story StoryRequest) error {
	client, err := e.sessions.Client(handle)
	if err != nil {
		return err
	}
	authorized, err := client.Authorized(ctx)
	if err != nil {
		return err
	}
	if !authorized {
		return sessions.ErrNotAuthorized
	}
	return client.SendStory(ctx, story.FilePath, story.Spoiler, story.TTLSeconds)
}
