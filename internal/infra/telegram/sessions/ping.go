package sessions

import (
	"context"
	"strings"

	"github.com/gotd/td/tg"

	"telegram-gateway/internal/infra/logger"
)

const (
	pingCommand   = "/ping"
	pingReplyText = "pong"
)

// registerPingReply вешает на диспетчер автоответчик: входящее сообщение "/ping"
// получает в ответ "pong". Ошибки автоответчика только логируются: обработка
// апдейтов из-за него падать не должна.
func registerPingReply(dispatcher tg.UpdateDispatcher, api *tg.Client) {
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		msg, ok := update.Message.(*tg.Message)
		if !ok || msg.Out {
			return nil
		}
		if strings.TrimSpace(msg.Message) != pingCommand {
			return nil
		}

		peer, ok := replyPeer(e, msg.PeerID)
		if !ok {
			logger.Debugf("ping responder: no entity for peer %T", msg.PeerID)
			return nil
		}
		if _, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  pingReplyText,
			RandomID: randomID(),
		}); err != nil {
			logger.Warnf("ping responder: reply failed: %v", err)
		}
		return nil
	})
}

// replyPeer строит InputPeer для ответа из сущностей, пришедших вместе с апдейтом.
func replyPeer(e tg.Entities, peer tg.PeerClass) (tg.InputPeerClass, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		if u, ok := e.Users[p.UserID]; ok {
			return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, true
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerChannel:
		if ch, ok := e.Channels[p.ChannelID]; ok {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
		}
	}
	return nil, false
}
