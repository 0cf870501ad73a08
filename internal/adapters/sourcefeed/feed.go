package sourcefeed

import (
	"context"
	"strconv"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/media"
	"tgrelay/internal/infra/concurrency"
	"tgrelay/internal/infra/logger"
	"tgrelay/internal/infra/telegram/peersmgr"
	"tgrelay/internal/support/debug"
	"tgrelay/internal/tgutil"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// channelPeerOffset converts a bare channel id into the Bot-API-style
// negative chat id pairs are keyed by, matching the -100<id> convention the
// teacher's botapionotifier.toBotChatID uses on the sending side.
const channelPeerOffset int64 = -1000000000000

// Feed wires gotd's tg.UpdateDispatcher into dispatch.Dispatcher: every
// OnNewMessage/OnNewChannelMessage/OnEditMessage/OnEditChannelMessage/
// OnDeleteChannelMessages callback is translated into a
// dispatch.SourceEvent and handed to Dispatch, exactly the hand-off shape the
// teacher's domainupdates.Handlers performed into its notification queue.
type Feed struct {
	dispatcher *dispatch.Dispatcher
	peers      *peersmgr.Service
	dedup      *concurrency.Deduplicator
	debouncer  *concurrency.Debouncer
}

// NewFeed wires up a Feed. dedup suppresses update redelivery of an
// identical (chat, message, edit date) triple; debouncer coalesces a burst
// of rapid edits (e.g. typing a caption character by character) into a
// single dispatched edit event, matching the teacher's
// Deduplicator/Debouncer pair from internal/app/app.go's wiring.
func NewFeed(dispatcher *dispatch.Dispatcher, peers *peersmgr.Service, dedup *concurrency.Deduplicator, debouncer *concurrency.Debouncer) *Feed {
	return &Feed{dispatcher: dispatcher, peers: peers, dedup: dedup, debouncer: debouncer}
}

// Register attaches the feed's handlers to d. Call once, before the updates
// manager starts pumping events.
func (f *Feed) Register(d *tg.UpdateDispatcher) {
	d.OnNewMessage(f.onNewMessage)
	d.OnNewChannelMessage(f.onNewChannelMessage)
	d.OnEditMessage(f.onEditMessage)
	d.OnEditChannelMessage(f.onEditChannelMessage)
	d.OnDeleteChannelMessages(f.onDeleteChannelMessages)
}

func (f *Feed) onNewMessage(_ context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	return f.handleNew("new", e, u.Message)
}

func (f *Feed) onNewChannelMessage(_ context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
	return f.handleNew("new_channel", e, u.Message)
}

func (f *Feed) onEditMessage(_ context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
	return f.handleEdit("edit", e, u.Message)
}

func (f *Feed) onEditChannelMessage(_ context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
	return f.handleEdit("edit_channel", e, u.Message)
}

func (f *Feed) onDeleteChannelMessages(_ context.Context, u *tg.UpdateDeleteChannelMessages) error {
	chatID := channelPeerOffset - u.ChannelID
	f.dispatcher.Dispatch(dispatch.SourceEvent{
		Kind:          dispatch.KindDelete,
		SourceChatID:  chatID,
		DeletedMsgIDs: append([]int(nil), u.Messages...),
	})
	return nil
}

func (f *Feed) handleNew(prefix string, entities tg.Entities, raw tg.MessageClass) error {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return nil // service messages (joins, pins, ...) are not replicated
	}
	if f.isDuplicate(msg) {
		return nil
	}
	debug.PrintUpdate(prefix, msg, entities, f.peers)
	ev, ok := buildEvent(dispatch.KindNew, msg)
	if !ok {
		return nil
	}
	f.dispatcher.Dispatch(ev)
	return nil
}

func (f *Feed) handleEdit(prefix string, entities tg.Entities, raw tg.MessageClass) error {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return nil
	}
	if f.isDuplicate(msg) {
		return nil
	}
	debug.PrintUpdate(prefix, msg, entities, f.peers)
	ev, ok := buildEvent(dispatch.KindEdit, msg)
	if !ok {
		return nil
	}
	if f.debouncer == nil {
		f.dispatcher.Dispatch(ev)
		return nil
	}
	f.debouncer.Do(msg.ID, func() { f.dispatcher.Dispatch(ev) })
	return nil
}

func (f *Feed) isDuplicate(msg *tg.Message) bool {
	if f.dedup == nil {
		return false
	}
	chatID := peerChatID(msg.PeerID)
	return f.dedup.DedupSeen(chatID, msg.ID, msg.EditDate)
}

func buildEvent(kind dispatch.Kind, msg *tg.Message) (dispatch.SourceEvent, bool) {
	chatID := peerChatID(msg.PeerID)
	if chatID == 0 {
		logger.Warn("sourcefeed: could not resolve chat id for message", zap.Int("msg_id", msg.ID))
		return dispatch.SourceEvent{}, false
	}

	ev := dispatch.SourceEvent{
		Kind:         kind,
		SourceChatID: chatID,
		SourceMsgID:  msg.ID,
		Text:         msg.Message,
		Entities:     convertEntities(msg.Entities),
		HasMedia:     msg.Media != nil && !isEmptyMedia(msg.Media),
	}
	if ev.HasMedia {
		ev.MediaRef = msg.Media
	}
	if replyTo, ok := msg.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok {
			if id, ok := header.GetReplyToMsgID(); ok {
				ev.IsReply = true
				ev.ReplyToMsgID = id
			}
		}
	}
	return ev, true
}

func isEmptyMedia(m tg.MessageMediaClass) bool {
	_, ok := m.(*tg.MessageMediaEmpty)
	return ok
}

// peerChatID normalizes a message's peer into the same -100<id>/-id/id space
// pair.SourceChatID is configured in, mirroring botapionotifier.toBotChatID.
func peerChatID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		return channelPeerOffset - p.ChannelID
	case *tg.PeerChat:
		return -p.ChatID
	case *tg.PeerUser:
		return p.UserID
	default:
		return tgutil.GetPeerID(peer)
	}
}

func convertEntities(raw []tg.MessageEntityClass) []dispatch.Entity {
	out := make([]dispatch.Entity, 0, len(raw))
	for _, e := range raw {
		switch v := e.(type) {
		case *tg.MessageEntityBold:
			out = append(out, dispatch.Entity{Type: "Bold", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityItalic:
			out = append(out, dispatch.Entity{Type: "Italic", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityUnderline:
			out = append(out, dispatch.Entity{Type: "Underline", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityStrike:
			out = append(out, dispatch.Entity{Type: "Strike", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntitySpoiler:
			out = append(out, dispatch.Entity{Type: "Spoiler", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityCode:
			out = append(out, dispatch.Entity{Type: "Code", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityPre:
			out = append(out, dispatch.Entity{Type: "Pre", Offset: v.Offset, Length: v.Length, Extra: v.Language})
		case *tg.MessageEntityURL:
			out = append(out, dispatch.Entity{Type: "Url", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityTextURL:
			out = append(out, dispatch.Entity{Type: "TextUrl", Offset: v.Offset, Length: v.Length, Extra: v.URL})
		case *tg.MessageEntityMention:
			out = append(out, dispatch.Entity{Type: "Mention", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityMentionName:
			out = append(out, dispatch.Entity{Type: "MentionName", Offset: v.Offset, Length: v.Length, Extra: strconv.FormatInt(v.UserID, 10)})
		case *tg.MessageEntityCustomEmoji:
			out = append(out, dispatch.Entity{Type: "CustomEmoji", Offset: v.Offset, Length: v.Length, Extra: strconv.FormatInt(v.DocumentID, 10)})
		case *tg.MessageEntityHashtag:
			out = append(out, dispatch.Entity{Type: "Hashtag", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityCashtag:
			out = append(out, dispatch.Entity{Type: "Cashtag", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityBotCommand:
			out = append(out, dispatch.Entity{Type: "BotCommand", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityEmail:
			out = append(out, dispatch.Entity{Type: "Email", Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityPhone:
			out = append(out, dispatch.Entity{Type: "Phone", Offset: v.Offset, Length: v.Length})
		}
	}
	return out
}

// DescribeMedia resolves a raw tg.MessageMediaClass (stashed in a WorkItem's
// MediaRef by buildEvent) into the media.Descriptor the MediaPipeline
// understands. Passed to worker.Pool as its MediaFetcher.
func DescribeMedia(ctx context.Context, api *tg.Client, ref any) (media.Descriptor, bool) {
	m, ok := ref.(tg.MessageMediaClass)
	if !ok {
		return media.Descriptor{}, false
	}
	switch v := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := v.Photo.(*tg.Photo)
		if !ok {
			return media.Descriptor{}, false
		}
		return media.Descriptor{
			IsPhoto: true,
			Fetch:   func(ctx context.Context) ([]byte, error) { return downloadPhoto(ctx, api, photo) },
		}, true
	case *tg.MessageMediaWebPage:
		return media.Descriptor{IsWebpage: true}, true
	case *tg.MessageMediaDocument:
		doc, ok := v.Document.(*tg.Document)
		if !ok {
			return media.Descriptor{}, false
		}
		d := documentDescriptor(doc)
		d.Fetch = func(ctx context.Context) ([]byte, error) { return downloadDocument(ctx, api, doc) }
		return d, true
	default:
		return media.Descriptor{}, false
	}
}
