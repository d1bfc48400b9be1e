// Package sessions — реестр живых MTProto-соединений шлюза.
//
// Каждое соединение идентифицируется handle — сериализованными сессионными
// данными в URL-safe base64. Handle одновременно служит ключом реестра и
// «паспортом» сессии: по нему можно возобновить соединение после перезапуска
// шлюза. Реестр хранит также учётные данные Telegram API (app_id/app_hash),
// без которых новые соединения не создаются.
package sessions

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"telegram-gateway/internal/infra/logger"
)

const defaultThrottleRPS = 10

// Credentials — учётные данные приложения с my.telegram.org.
type Credentials struct {
	AppID   int
	AppHash string
}

// Options — параметры, общие для всех создаваемых соединений.
type Options struct {
	// TestDC направляет соединения в тестовые дата-центры Telegram.
	TestDC bool
	// ThrottleRPS ограничивает частоту запросов каждого клиента.
	ThrottleRPS int
	// PingReply включает автоответчик "/ping" → "pong" на входящих сообщениях.
	PingReply bool
}

// connectFunc подменяется в тестах, чтобы не ходить в сеть.
type connectFunc func(ctx context.Context, opts dialOptions) (*Client, error)

// Manager — потокобезопасный реестр handle → Client.
//
// Инварианты:
//   - под mu выполняются только операции над map и creds, но не сетевые вызовы:
//     установка соединения идёт вне блокировки;
//   - один handle — максимум одна запись; проигравшее гонку соединение гасится.
type Manager struct {
	runCtx  context.Context
	opts    Options
	connect connectFunc

	mu      sync.RWMutex
	creds   *Credentials
	clients map[string]*Client
}

// NewManager создаёт пустой реестр. runCtx задаёт жизненный цикл всех
// соединений: его отмена обрывает их независимо от HTTP-запросов.
func NewManager(runCtx context.Context, opts Options) *Manager {
	if opts.ThrottleRPS <= 0 {
		opts.ThrottleRPS = defaultThrottleRPS
	}
	return &Manager{
		runCtx:  runCtx,
		opts:    opts,
		connect: dialTelegram,
		clients: make(map[string]*Client),
	}
}

// SetCredentials запоминает app_id/app_hash для последующих соединений.
// Уже установленные соединения не трогаем.
func (m *Manager) SetCredentials(appID int, appHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &Credentials{AppID: appID, AppHash: appHash}
}

// credentials возвращает копию учётных данных либо ErrCredentialsUnset.
func (m *Manager) credentials() (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return Credentials{}, ErrCredentialsUnset
	}
	return *m.creds, nil
}

// CreateClient создаёт новое соединение или возобновляет существующее.
//
// Если existingHandle непустой и под ним уже есть живой клиент — возвращаем его
// handle без нового подключения. Если живого клиента нет, handle декодируется в
// сессионные данные, и соединение поднимается на их основе.
func (m *Manager) CreateClient(ctx context.Context, existingHandle string) (string, error) {
	creds, err := m.credentials()
	if err != nil {
		return "", err
	}

	var sessionData []byte
	if existingHandle != "" {
		m.mu.RLock()
		_, live := m.clients[existingHandle]
		m.mu.RUnlock()
		if live {
			return existingHandle, nil
		}
		if sessionData, err = decodeHandle(existingHandle); err != nil {
			return "", err
		}
	}

	c, err := m.connect(ctx, m.dialOptions(creds, sessionData, ""))
	if err != nil {
		return "", err
	}
	return m.store(c), nil
}

// CreateBotClient создаёт соединение и сразу авторизует его по bot-токену.
func (m *Manager) CreateBotClient(ctx context.Context, token string) (string, error) {
	creds, err := m.credentials()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("bot token is empty")
	}

	c, err := m.connect(ctx, m.dialOptions(creds, nil, token))
	if err != nil {
		return "", err
	}
	return m.store(c), nil
}

// dialOptions собирает параметры подключения из настроек реестра.
func (m *Manager) dialOptions(creds Credentials, sessionData []byte, botToken string) dialOptions {
	return dialOptions{
		creds:       creds,
		sessionData: sessionData,
		botToken:    botToken,
		testDC:      m.opts.TestDC,
		throttleRPS: m.opts.ThrottleRPS,
		pingReply:   m.opts.PingReply,
		runCtx:      m.runCtx,
	}
}

// store регистрирует клиента в реестре. Если за время подключения под тем же
// handle успела появиться другая запись, победителем остаётся существующая,
// а новое соединение закрывается: две записи на один handle недопустимы.
func (m *Manager) store(c *Client) string {
	m.mu.Lock()
	if _, exists := m.clients[c.handle]; exists {
		m.mu.Unlock()
		if err := c.Close(); err != nil {
			logger.Warnf("sessions: close duplicate connection: %v", err)
		}
		return c.handle
	}
	m.clients[c.handle] = c
	m.mu.Unlock()
	return c.handle
}

// Client возвращает живого клиента по handle либо ErrSessionNotFound.
func (m *Manager) Client(handle string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[handle]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// RemoveClient отключает клиента и убирает его из реестра.
// Отсутствующий handle не считается ошибкой: результат тот же — записи нет.
func (m *Manager) RemoveClient(handle string) error {
	m.mu.Lock()
	c, ok := m.clients[handle]
	if ok {
		delete(m.clients, handle)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return errors.Wrap(err, "close client")
	}
	return nil
}

// Len возвращает количество живых соединений в реестре.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// DisconnectAll закрывает все соединения и опустошает реестр.
// Вызывается один раз при останове приложения.
func (m *Manager) DisconnectAll() error {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	var errs []error
	for handle, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %s", shortHandle(handle)))
		}
	}
	return errors.Join(errs...)
}

// shortHandle обрезает handle для логов: целиком он и длинный, и чувствительный.
func shortHandle(handle string) string {
	const visible = 8
	if len(handle) <= visible {
		return handle
	}
	return handle[:visible] + "..."
}
