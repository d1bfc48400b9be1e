package sessions

import (
	"bytes"
	"testing"

	"github.com/gotd/td/tg"
)

func TestNumericRecipient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		recipient string
		wantID    int64
		wantOK    bool
	}{
		{name: "plain id", recipient: "123456789", wantID: 123456789, wantOK: true},
		{name: "id with spaces", recipient: "  42  ", wantID: 42, wantOK: true},
		{name: "username", recipient: "durov", wantOK: false},
		{name: "username with digits", recipient: "user123x", wantOK: false},
		{name: "empty", recipient: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			peer, ok := numericRecipient(tt.recipient)
			if ok != tt.wantOK {
				t.Fatalf("numericRecipient(%q) ok = %v, want %v", tt.recipient, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			user, isUser := peer.(*tg.InputPeerUser)
			if !isUser {
				t.Fatalf("numericRecipient(%q) peer type = %T, want *tg.InputPeerUser", tt.recipient, peer)
			}
			if user.UserID != tt.wantID {
				t.Errorf("UserID = %d, want %d", user.UserID, tt.wantID)
			}
			if user.AccessHash != 0 {
				t.Errorf("AccessHash = %d, want 0", user.AccessHash)
			}
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"@durov", "durov"},
		{"durov", "durov"},
		{"  @channel_name ", "channel_name"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeUsername(tt.in); got != tt.want {
			t.Errorf("normalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInputPeerFromResolved(t *testing.T) {
	t.Parallel()

	t.Run("user", func(t *testing.T) {
		t.Parallel()

		resolved := &tg.ContactsResolvedPeer{
			Peer:  &tg.PeerUser{UserID: 7},
			Users: []tg.UserClass{&tg.User{ID: 7, AccessHash: 99}},
		}
		peer, err := inputPeerFromResolved(resolved)
		if err != nil {
			t.Fatalf("inputPeerFromResolved() error = %v", err)
		}
		user, ok := peer.(*tg.InputPeerUser)
		if !ok {
			t.Fatalf("peer type = %T, want *tg.InputPeerUser", peer)
		}
		if user.UserID != 7 || user.AccessHash != 99 {
			t.Errorf("peer = %+v, want id 7 hash 99", user)
		}
	})

	t.Run("channel", func(t *testing.T) {
		t.Parallel()

		resolved := &tg.ContactsResolvedPeer{
			Peer:  &tg.PeerChannel{ChannelID: 11},
			Chats: []tg.ChatClass{&tg.Channel{ID: 11, AccessHash: 55}},
		}
		peer, err := inputPeerFromResolved(resolved)
		if err != nil {
			t.Fatalf("inputPeerFromResolved() error = %v", err)
		}
		channel, ok := peer.(*tg.InputPeerChannel)
		if !ok {
			t.Fatalf("peer type = %T, want *tg.InputPeerChannel", peer)
		}
		if channel.ChannelID != 11 || channel.AccessHash != 55 {
			t.Errorf("peer = %+v, want id 11 hash 55", channel)
		}
	})

	t.Run("missing entity", func(t *testing.T) {
		t.Parallel()

		resolved := &tg.ContactsResolvedPeer{Peer: &tg.PeerUser{UserID: 7}}
		if _, err := inputPeerFromResolved(resolved); err == nil {
			t.Fatal("inputPeerFromResolved() must fail when the entity list is empty")
		}
	})
}

func TestChannelFromResolved(t *testing.T) {
	t.Parallel()

	resolved := &tg.ContactsResolvedPeer{
		Peer:  &tg.PeerChannel{ChannelID: 3},
		Chats: []tg.ChatClass{&tg.Channel{ID: 3, AccessHash: 17}},
	}
	ch, err := channelFromResolved(resolved)
	if err != nil {
		t.Fatalf("channelFromResolved() error = %v", err)
	}
	if ch.ID != 3 || ch.AccessHash != 17 {
		t.Errorf("channel = %+v, want id 3 hash 17", ch)
	}

	notChannel := &tg.ContactsResolvedPeer{Peer: &tg.PeerUser{UserID: 3}}
	if _, err = channelFromResolved(notChannel); err == nil {
		t.Fatal("channelFromResolved() must reject a non-channel peer")
	}
}

func TestHandleRoundTrip(t *testing.T) {
	t.Parallel()

	// decodeHandle обязан возвращать ровно те байты, из которых handle был
	// построен: на них строится возобновление сессии.
	original := []byte{0x01, 0x02, 0xFF, 0x00, 0x7F}
	handle := "AQL_AH8" // base64.RawURLEncoding от original

	data, err := decodeHandle(handle)
	if err != nil {
		t.Fatalf("decodeHandle() error = %v", err)
	}
	if !bytes.Equal(data, original) {
		t.Errorf("decodeHandle() = %v, want %v", data, original)
	}

	if _, err = decodeHandle("not valid base64!!"); err == nil {
		t.Fatal("decodeHandle() must reject malformed input")
	}
}

func TestReplyPeer(t *testing.T) {
	t.Parallel()

	entities := tg.Entities{
		Users:    map[int64]*tg.User{5: {ID: 5, AccessHash: 50}},
		Channels: map[int64]*tg.Channel{9: {ID: 9, AccessHash: 90}},
	}

	tests := []struct {
		name   string
		peer   tg.PeerClass
		want   tg.InputPeerClass
		wantOK bool
	}{
		{
			name:   "known user",
			peer:   &tg.PeerUser{UserID: 5},
			want:   &tg.InputPeerUser{UserID: 5, AccessHash: 50},
			wantOK: true,
		},
		{
			name:   "unknown user",
			peer:   &tg.PeerUser{UserID: 6},
			wantOK: false,
		},
		{
			name:   "chat",
			peer:   &tg.PeerChat{ChatID: 8},
			want:   &tg.InputPeerChat{ChatID: 8},
			wantOK: true,
		},
		{
			name:   "known channel",
			peer:   &tg.PeerChannel{ChannelID: 9},
			want:   &tg.InputPeerChannel{ChannelID: 9, AccessHash: 90},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := replyPeer(entities, tt.peer)
			if ok != tt.wantOK {
				t.Fatalf("replyPeer() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			switch want := tt.want.(type) {
			case *tg.InputPeerUser:
				u := got.(*tg.InputPeerUser)
				if u.UserID != want.UserID || u.AccessHash != want.AccessHash {
					t.Errorf("replyPeer() = %+v, want %+v", u, want)
				}
			case *tg.InputPeerChat:
				c := got.(*tg.InputPeerChat)
				if c.ChatID != want.ChatID {
					t.Errorf("replyPeer() = %+v, want %+v", c, want)
				}
			case *tg.InputPeerChannel:
				ch := got.(*tg.InputPeerChannel)
				if ch.ChannelID != want.ChannelID || ch.AccessHash != want.AccessHash {
					t.Errorf("replyPeer() = %+v, want %+v", ch, want)
				}
			}
		})
	}
}

func TestShortHandle(t *testing.T) {
	t.Parallel()

	if got := shortHandle("abc"); got != "abc" {
		t.Errorf("shortHandle(short) = %q", got)
	}
	if got := shortHandle("abcdefghijklmnop"); got != "abcdefgh..." {
		t.Errorf("shortHandle(long) = %q", got)
	}
}
