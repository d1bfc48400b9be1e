package sessions

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/go-faster/errors"
)

// stubClient — клиент без сети: фоновой горутины нет, done уже закрыт,
// поэтому Close() возвращается немедленно.
func stubClient(handle string) *Client {
	c := &Client{
		handle: handle,
		cancel: func() {},
		done:   make(chan struct{}),
	}
	close(c.done)
	return c
}

// newTestManager — реестр с подменённым connect и установленными учётными данными.
func newTestManager(connect connectFunc) *Manager {
	m := NewManager(context.Background(), Options{})
	m.connect = connect
	m.SetCredentials(12345, "test-hash")
	return m
}

func TestCreateClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	dialed := false
	m := NewManager(context.Background(), Options{})
	m.connect = func(_ context.Context, _ dialOptions) (*Client, error) {
		dialed = true
		return stubClient("h"), nil
	}

	_, err := m.CreateClient(context.Background(), "")
	if !errors.Is(err, ErrCredentialsUnset) {
		t.Fatalf("CreateClient() error = %v, want ErrCredentialsUnset", err)
	}
	if dialed {
		t.Error("connect must not be called without credentials")
	}
}

func TestCreateClientRegistersHandle(t *testing.T) {
	t.Parallel()

	m := newTestManager(func(_ context.Context, opts dialOptions) (*Client, error) {
		if opts.creds.AppID != 12345 || opts.creds.AppHash != "test-hash" {
			t.Errorf("connect got creds %+v", opts.creds)
		}
		if len(opts.sessionData) != 0 {
			t.Errorf("new session must not carry session data, got %d bytes", len(opts.sessionData))
		}
		return stubClient("fresh"), nil
	})

	handle, err := m.CreateClient(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if handle != "fresh" {
		t.Fatalf("CreateClient() handle = %q, want %q", handle, "fresh")
	}
	if _, err = m.Client(handle); err != nil {
		t.Fatalf("Client(%q) error = %v", handle, err)
	}
	if got := m.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestCreateClientReusesLiveConnection(t *testing.T) {
	t.Parallel()

	dials := 0
	m := newTestManager(func(_ context.Context, _ dialOptions) (*Client, error) {
		dials++
		return stubClient("live"), nil
	})
	m.clients["live"] = stubClient("live")

	handle, err := m.CreateClient(context.Background(), "live")
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if handle != "live" {
		t.Fatalf("CreateClient() handle = %q, want %q", handle, "live")
	}
	if dials != 0 {
		t.Errorf("live handle must be reused without dialing, got %d dials", dials)
	}
}

func TestCreateClientResumesFromHandle(t *testing.T) {
	t.Parallel()

	sessionBytes := []byte("serialized-session-data")
	existing := base64.RawURLEncoding.EncodeToString(sessionBytes)

	var gotData []byte
	m := newTestManager(func(_ context.Context, opts dialOptions) (*Client, error) {
		gotData = opts.sessionData
		return stubClient(existing), nil
	})

	handle, err := m.CreateClient(context.Background(), existing)
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if handle != existing {
		t.Fatalf("CreateClient() handle = %q, want existing handle", handle)
	}
	if string(gotData) != string(sessionBytes) {
		t.Errorf("connect got session data %q, want %q", gotData, sessionBytes)
	}
}

func TestCreateClientRejectsMalformedHandle(t *testing.T) {
	t.Parallel()

	m := newTestManager(func(_ context.Context, _ dialOptions) (*Client, error) {
		t.Error("connect must not be called for a malformed handle")
		return stubClient("h"), nil
	})

	if _, err := m.CreateClient(context.Background(), "not!base64?data"); err == nil {
		t.Fatal("CreateClient() with malformed handle must fail")
	}
}

func TestCreateBotClient(t *testing.T) {
	t.Parallel()

	var gotToken string
	m := newTestManager(func(_ context.Context, opts dialOptions) (*Client, error) {
		gotToken = opts.botToken
		return stubClient("bot"), nil
	})

	if _, err := m.CreateBotClient(context.Background(), ""); err == nil {
		t.Fatal("CreateBotClient() with empty token must fail")
	}

	handle, err := m.CreateBotClient(context.Background(), "12345:token")
	if err != nil {
		t.Fatalf("CreateBotClient() error = %v", err)
	}
	if handle != "bot" {
		t.Fatalf("CreateBotClient() handle = %q, want %q", handle, "bot")
	}
	if gotToken != "12345:token" {
		t.Errorf("connect got token %q", gotToken)
	}
}

func TestClientNotFound(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil)
	if _, err := m.Client("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Client() error = %v, want ErrSessionNotFound", err)
	}
}

func TestRemoveClient(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil)
	m.clients["gone"] = stubClient("gone")

	if err := m.RemoveClient("gone"); err != nil {
		t.Fatalf("RemoveClient() error = %v", err)
	}
	if _, err := m.Client("gone"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("client still present after removal: %v", err)
	}

	// Повторное удаление — no-op.
	if err := m.RemoveClient("gone"); err != nil {
		t.Fatalf("RemoveClient() of absent handle error = %v", err)
	}
}

func TestDisconnectAll(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil)
	m.clients["a"] = stubClient("a")
	m.clients["b"] = stubClient("b")

	if err := m.DisconnectAll(); err != nil {
		t.Fatalf("DisconnectAll() error = %v", err)
	}
	if got := m.Len(); got != 0 {
		t.Fatalf("Len() after DisconnectAll = %d, want 0", got)
	}
}

func TestStoreDuplicateHandleKeepsWinner(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil)
	winner := stubClient("same")
	loser := stubClient("same")

	m.store(winner)
	if got := m.store(loser); got != "same" {
		t.Fatalf("store() handle = %q, want %q", got, "same")
	}

	if got := m.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	kept, err := m.Client("same")
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if kept != winner {
		t.Error("duplicate registration must keep the existing client")
	}
}
