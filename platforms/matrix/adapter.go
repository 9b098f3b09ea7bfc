package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"psyduck/core"
)

const (
	relationsPage = 100
	// Everyone is the room-wide mention.
	Everyone = "@room"
)

type MatrixAdapter struct {
	Client   *mautrix.Client
	Core     *core.Bot
	AutoJoin bool
	ignore   map[id.UserID]bool
	log      zerolog.Logger
}

var _ core.Platform = (*MatrixAdapter)(nil)

func NewMatrixAdapter(client *mautrix.Client, cfg *Config, log zerolog.Logger) *MatrixAdapter {
	ignore := make(map[id.UserID]bool, len(cfg.IgnoreUsers)+1)
	ignore[client.UserID] = true
	for _, u := range cfg.IgnoreUsers {
		ignore[id.UserID(u)] = true
	}
	return &MatrixAdapter{
		Client:   client,
		AutoJoin: cfg.AutoJoinInvites,
		ignore:   ignore,
		log:      log.With().Str("platform", "matrix").Logger(),
	}
}

// Start syncs until ctx is cancelled, routing room messages to coreBot.
func (ma *MatrixAdapter) Start(ctx context.Context, coreBot *core.Bot) error {
	ma.Core = coreBot
	syncer := ma.Client.Syncer.(*mautrix.DefaultSyncer)

	syncer.OnEventType(event.EventMessage, ma.handleEvent)
	syncer.OnEventType(event.StateMember, ma.handleInvite)

	ma.log.Info().Msg("Starting Matrix adapter...")
	err := ma.Client.SyncWithContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (ma *MatrixAdapter) handleInvite(ctx context.Context, evt *event.Event) {
	if !ma.AutoJoin {
		return
	}

	state := evt.Content.AsMember()
	isForMe := evt.GetStateKey() == ma.Client.UserID.String()
	if state.Membership != event.MembershipInvite || !isForMe {
		return
	}

	ma.log.Info().Stringer("sender", evt.Sender).Stringer("room", evt.RoomID).Msg("Received invite, joining")
	if _, err := ma.Client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		ma.log.Error().Err(err).Stringer("room", evt.RoomID).Msg("Failed to join room")
		return
	}
	ma.log.Info().Stringer("room", evt.RoomID).Msg("✅ Successfully joined room")
}

func (ma *MatrixAdapter) handleEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == ma.Client.UserID || time.Since(time.UnixMilli(evt.Timestamp)) > 2*time.Minute {
		return
	}

	msgContent, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || msgContent.MsgType != event.MsgText {
		return
	}

	go ma.Core.HandleMessage(ctx, core.IncomingMessage{
		Platform:  "matrix",
		UserID:    evt.Sender.String(),
		UserName:  evt.Sender.String(),
		ChatID:    evt.RoomID.String(),
		MessageID: evt.ID.String(),
		Content:   msgContent.Body,
		IsBot:     ma.ignore[evt.Sender],
	}, ma)
}

func (ma *MatrixAdapter) SendText(ctx context.Context, chatID string, text string) error {
	content := format.RenderMarkdown(text, true, false)
	_, err := ma.Client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, &content)
	return mapError(err)
}

func (ma *MatrixAdapter) SendCard(ctx context.Context, chatID string, card core.Card) (string, error) {
	content := format.RenderMarkdown(RenderCard(card), true, false)
	resp, err := ma.Client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, &content)
	if err != nil {
		return "", mapError(err)
	}
	return resp.EventID.String(), nil
}

func (ma *MatrixAdapter) AddReaction(ctx context.Context, chatID, messageID, emoji string) error {
	_, err := ma.Client.SendReaction(ctx, id.RoomID(chatID), id.EventID(messageID), emoji)
	return mapError(err)
}

func (ma *MatrixAdapter) Pin(ctx context.Context, chatID, messageID string) error {
	return ma.updatePins(ctx, id.RoomID(chatID), func(pinned []id.EventID) []id.EventID {
		for _, evtID := range pinned {
			if evtID == id.EventID(messageID) {
				return pinned
			}
		}
		return append(pinned, id.EventID(messageID))
	})
}

func (ma *MatrixAdapter) Unpin(ctx context.Context, chatID, messageID string) error {
	return ma.updatePins(ctx, id.RoomID(chatID), func(pinned []id.EventID) []id.EventID {
		out := pinned[:0]
		for _, evtID := range pinned {
			if evtID != id.EventID(messageID) {
				out = append(out, evtID)
			}
		}
		return out
	})
}

func (ma *MatrixAdapter) updatePins(ctx context.Context, roomID id.RoomID, update func([]id.EventID) []id.EventID) error {
	var content event.PinnedEventsEventContent
	err := ma.Client.StateEvent(ctx, roomID, event.StatePinnedEvents, "", &content)
	if err != nil && !errors.Is(err, mautrix.MNotFound) {
		return mapError(err)
	}
	content.Pinned = update(content.Pinned)
	_, err = ma.Client.SendStateEvent(ctx, roomID, event.StatePinnedEvents, "", &content)
	return mapError(err)
}

// Reactors reads the m.annotation relations of a message and returns the
// senders whose reaction key is emoji.
func (ma *MatrixAdapter) Reactors(ctx context.Context, chatID, messageID, emoji string) ([]core.User, error) {
	roomID := id.RoomID(chatID)
	req := &mautrix.ReqGetRelations{
		RelationType: event.RelAnnotation,
		Limit:        relationsPage,
	}

	var out []core.User
	for {
		resp, err := ma.Client.GetRelations(ctx, roomID, id.EventID(messageID), req)
		if err != nil {
			return nil, mapError(err)
		}
		for _, evt := range resp.Chunk {
			if key, ok := ma.reactionKey(ctx, roomID, evt); ok && key == emoji {
				out = append(out, ma.toUser(evt.Sender))
			}
		}
		if resp.NextBatch == "" {
			return out, nil
		}
		req.From = resp.NextBatch
	}
}

func (ma *MatrixAdapter) reactionKey(ctx context.Context, roomID id.RoomID, evt *event.Event) (string, bool) {
	evt.RoomID = roomID
	if evt.Type == event.EventEncrypted {
		if ma.Client.Crypto == nil {
			return "", false
		}
		_ = evt.Content.ParseRaw(evt.Type)
		decrypted, err := ma.Client.Crypto.Decrypt(ctx, evt)
		if err != nil {
			ma.log.Warn().Err(err).Stringer("event", evt.ID).Msg("Failed to decrypt reaction")
			return "", false
		}
		evt = decrypted
	}
	if evt.Type != event.EventReaction {
		return "", false
	}
	if evt.Content.Parsed == nil {
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			return "", false
		}
	}
	return evt.Content.AsReaction().RelatesTo.Key, true
}

func (ma *MatrixAdapter) toUser(userID id.UserID) core.User {
	return core.User{
		ID:      userID.String(),
		Name:    userID.String(),
		Mention: fmt.Sprintf("[%s](https://matrix.to/#/%s)", userID, userID),
		Bot:     ma.ignore[userID],
	}
}

// RenderCard flattens a card into markdown.
func RenderCard(card core.Card) string {
	var sb strings.Builder
	if card.Content != "" {
		sb.WriteString(card.Content + "\n\n")
	}
	if card.Author != "" {
		sb.WriteString("*" + card.Author + "*\n\n")
	}
	if card.Title != "" {
		sb.WriteString("### " + card.Title + "\n\n")
	}
	if card.Description != "" {
		sb.WriteString(card.Description + "\n\n")
	}
	for _, f := range card.Fields {
		sb.WriteString("**" + strings.ReplaceAll(f.Name, "**", "") + "**  \n")
		sb.WriteString(f.Value + "\n\n")
	}
	if card.Footer != "" {
		sb.WriteString("_" + card.Footer + "_\n")
	}
	return strings.TrimSpace(sb.String())
}

// mapError turns M_FORBIDDEN into core.ErrPermission.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mautrix.MForbidden) {
		return fmt.Errorf("%w: %v", core.ErrPermission, err)
	}
	return err
}
