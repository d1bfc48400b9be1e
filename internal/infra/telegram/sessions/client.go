package sessions

import (
	"context"
	"encoding/base64"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"
)

// Идентификация «устройства» шлюза в my.telegram.org → Active sessions.
const (
	deviceModel   = "TelegramGateway"
	systemVersion = "Linux"
	appVersion    = "1.0.0"
)

// dialOptions — параметры установки одного MTProto-соединения.
// sessionData непустой при возобновлении по существующему handle,
// botToken непустой при bot-авторизации.
type dialOptions struct {
	creds       Credentials
	sessionData []byte
	botToken    string
	testDC      bool
	throttleRPS int
	pingReply   bool
	// runCtx — базовый контекст жизни соединения: живёт дольше, чем HTTP-запрос,
	// в рамках которого соединение создаётся.
	runCtx context.Context
}

// Client — одно живое MTProto-соединение плюс его handle в реестре.
// Все доменные операции (send code, send message, join, story) живут здесь;
// Manager отвечает только за хранение и жизненный цикл.
type Client struct {
	handle string
	client *telegram.Client
	api    *tg.Client
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// dialTelegram устанавливает соединение и держит его в фоне до cancel.
// telegram.Client.Run блокирует на всё время жизни соединения, поэтому
// запускаем его в горутине и ждём сигнала готовности.
func dialTelegram(ctx context.Context, opts dialOptions) (*Client, error) {
	sessionStorage := &session.StorageMemory{}
	if len(opts.sessionData) > 0 {
		if err := sessionStorage.StoreSession(ctx, opts.sessionData); err != nil {
			return nil, errors.Wrap(err, "seed session storage")
		}
	}

	dispatcher := tg.NewUpdateDispatcher()
	options := telegram.Options{
		SessionStorage: sessionStorage,
		UpdateHandler:  dispatcher,
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter(),
			ratelimit.New(rate.Limit(opts.throttleRPS), opts.throttleRPS*2),
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   deviceModel,
			SystemVersion: systemVersion,
			AppVersion:    appVersion,
		},
	}
	if opts.testDC {
		options.DCList = dcs.Test()
	}

	tgClient := telegram.NewClient(opts.creds.AppID, opts.creds.AppHash, options)

	runCtx, cancel := context.WithCancel(opts.runCtx)
	c := &Client{
		client: tgClient,
		api:    tgClient.API(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if opts.pingReply {
		registerPingReply(dispatcher, c.api)
	}

	ready := make(chan struct{})
	go func() {
		defer close(c.done)
		c.runErr = tgClient.Run(runCtx, func(runCtx context.Context) error {
			close(ready)
			<-runCtx.Done()
			return runCtx.Err()
		})
	}()

	select {
	case <-ready:
	case <-c.done:
		cancel()
		if c.runErr != nil {
			return nil, errors.Wrap(c.runErr, "connect")
		}
		return nil, errors.New("connection closed before becoming ready")
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}

	if opts.botToken != "" {
		if err := c.authorizeBot(ctx, opts.botToken); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	// Handle вычисляется один раз после подключения (для ботов — после
	// авторизации) и дальше не меняется, даже если Telegram пересохранит
	// сессионные данные: ключ реестра должен оставаться стабильным.
	handle, err := exportHandle(ctx, sessionStorage)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.handle = handle
	return c, nil
}

// authorizeBot выполняет bot-авторизацию, если сессия ещё не авторизована.
func (c *Client) authorizeBot(ctx context.Context, token string) error {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return errors.Wrap(err, "auth status")
	}
	if status.Authorized {
		return nil
	}
	if _, err = c.client.Auth().Bot(ctx, token); err != nil {
		return errors.Wrap(err, "bot sign-in")
	}
	return nil
}

// Handle возвращает ключ реестра, по которому клиент ищется в Manager.
func (c *Client) Handle() string {
	return c.handle
}

// Close останавливает фоновое соединение и ждёт завершения Run.
// Штатная отмена контекста ошибкой не считается.
func (c *Client) Close() error {
	c.cancel()
	<-c.done
	if c.runErr != nil && !errors.Is(c.runErr, context.Canceled) {
		return c.runErr
	}
	return nil
}

// Authorized сообщает, прошла ли сессия авторизацию (user или bot).
func (c *Client) Authorized(ctx context.Context) (bool, error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, errors.Wrap(err, "auth status")
	}
	return status.Authorized, nil
}

// Self возвращает данные аккаунта текущей сессии.
func (c *Client) Self(ctx context.Context) (*tg.User, error) {
	user, err := c.client.Self(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch self")
	}
	return user, nil
}

// SendCode запрашивает у Telegram OTP-код для номера и возвращает phone_code_hash,
// который потребуется на шаге подтверждения.
func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", errors.Wrap(err, "send code")
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", errors.Errorf("unexpected sent code type %T", sent)
	}
	return code.PhoneCodeHash, nil
}

// SignInCode подтверждает OTP-код. Ошибки не классифицируются здесь:
// вызывающий различает password-needed и invalid-code через errors.Is/tgerr.
func (c *Client) SignInCode(ctx context.Context, phone, code, codeHash string) (*tg.User, error) {
	if _, err := c.client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		return nil, err
	}
	return c.Self(ctx)
}

// SignInPassword завершает вход по паролю двухфакторной аутентификации.
func (c *Client) SignInPassword(ctx context.Context, password string) (*tg.User, error) {
	if _, err := c.client.Auth().Password(ctx, password); err != nil {
		return nil, errors.Wrap(err, "2fa sign-in")
	}
	return c.Self(ctx)
}

// SendMessage отправляет текст указанному получателю и возвращает id сообщения.
func (c *Client) SendMessage(ctx context.Context, recipient, text string) (int, error) {
	peer, err := c.resolveRecipient(ctx, recipient)
	if err != nil {
		return 0, err
	}
	msgID, err := unpack.MessageID(c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: randomID(),
	}))
	if err != nil {
		return 0, errors.Wrap(err, "send message")
	}
	return msgID, nil
}

// JoinChannel резолвит публичный канал по username и вступает в него.
func (c *Client) JoinChannel(ctx context.Context, channel string) error {
	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: normalizeUsername(channel),
	})
	if err != nil {
		return errors.Wrapf(err, "resolve channel %q", channel)
	}
	ch, err := channelFromResolved(resolved)
	if err != nil {
		return err
	}
	if _, err = c.api.ChannelsJoinChannel(ctx, &tg.InputChannel{
		ChannelID:  ch.ID,
		AccessHash: ch.AccessHash,
	}); err != nil {
		return errors.Wrapf(err, "join channel %q", channel)
	}
	return nil
}

// SendStory загружает фото и публикует его историей от имени текущего аккаунта.
// ttlSeconds ограничивает время жизни истории; приватность — «только контакты».
func (c *Client) SendStory(ctx context.Context, filePath string, spoiler bool, ttlSeconds int) error {
	file, err := uploader.NewUploader(c.api).FromPath(ctx, filePath)
	if err != nil {
		return errors.Wrapf(err, "upload story file %q", filePath)
	}
	_, err = c.api.StoriesSendStory(ctx, &tg.StoriesSendStoryRequest{
		Peer: &tg.InputPeerSelf{},
		Media: &tg.InputMediaUploadedPhoto{
			File:       file,
			Spoiler:    spoiler,
			TTLSeconds: ttlSeconds,
		},
		PrivacyRules: []tg.InputPrivacyRuleClass{&tg.InputPrivacyValueAllowContacts{}},
		RandomID:     randomID(),
	})
	if err != nil {
		return errors.Wrap(err, "send story")
	}
	return nil
}

// resolveRecipient превращает строку получателя в InputPeer: сначала пробуем
// числовой id, иначе резолвим как username.
func (c *Client) resolveRecipient(ctx context.Context, recipient string) (tg.InputPeerClass, error) {
	if peer, ok := numericRecipient(recipient); ok {
		return peer, nil
	}
	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: normalizeUsername(recipient),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "resolve recipient %q", recipient)
	}
	return inputPeerFromResolved(resolved)
}

// numericRecipient трактует целиком числовую строку как user id.
// Access hash нулевой: для собственных контактов сервер это допускает.
func numericRecipient(recipient string) (tg.InputPeerClass, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return nil, false
	}
	return &tg.InputPeerUser{UserID: id}, true
}

// inputPeerFromResolved сопоставляет peer из ответа резолва с сущностью из того же
// ответа, чтобы получить access hash.
func inputPeerFromResolved(resolved *tg.ContactsResolvedPeer) (tg.InputPeerClass, error) {
	switch peer := resolved.Peer.(type) {
	case *tg.PeerUser:
		for _, u := range resolved.Users {
			if user, ok := u.(*tg.User); ok && user.ID == peer.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: peer.ChatID}, nil
	case *tg.PeerChannel:
		for _, chat := range resolved.Chats {
			if ch, ok := chat.(*tg.Channel); ok && ch.ID == peer.ChannelID {
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
			}
		}
	}
	return nil, errors.New("resolved peer has no usable entity")
}

// channelFromResolved извлекает канал из ответа резолва username.
func channelFromResolved(resolved *tg.ContactsResolvedPeer) (*tg.Channel, error) {
	peer, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return nil, errors.Errorf("resolved peer %T is not a channel", resolved.Peer)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == peer.ChannelID {
			return ch, nil
		}
	}
	return nil, errors.New("resolved channel entity is missing")
}

// normalizeUsername убирает пробелы и необязательный префикс @.
func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// exportHandle сериализует текущие сессионные данные в URL-safe base64 без паддинга.
func exportHandle(ctx context.Context, storage *session.StorageMemory) (string, error) {
	data, err := storage.LoadSession(ctx)
	if err != nil {
		return "", errors.Wrap(err, "load session data")
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeHandle восстанавливает сессионные данные из handle.
func decodeHandle(handle string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(handle)
	if err != nil {
		return nil, errors.Wrap(err, "decode session handle")
	}
	return data, nil
}

// randomID генерирует random_id для идемпотентности отправки на стороне Telegram.
func randomID() int64 {
	return rand.Int64()
}
