package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"psyduck/core"
)

const (
	maxMessageLen = 2000
	reactionPage  = 100
)

type Config struct {
	Token     string `toml:"token"`
	ChannelID string `toml:"channel_id"`
}

type DiscordAdapter struct {
	Session *discordgo.Session
	Core    *core.Bot
	BotID   string
	log     zerolog.Logger
	ctx     context.Context
}

var _ core.Platform = (*DiscordAdapter)(nil)

func NewDiscordAdapter(token string, log zerolog.Logger) (*DiscordAdapter, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	return &DiscordAdapter{
		Session: dg,
		log:     log.With().Str("platform", "discord").Logger(),
		ctx:     context.Background(),
	}, nil
}

// Start connects to the gateway and routes channel messages to coreBot.
func (da *DiscordAdapter) Start(ctx context.Context, coreBot *core.Bot) error {
	da.ctx = ctx
	da.Core = coreBot
	da.Session.AddHandler(da.handleMessage)

	if err := da.Session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}

	u, err := da.Session.User("@me")
	if err != nil {
		return fmt.Errorf("error fetching self user: %w", err)
	}
	da.BotID = u.ID

	da.log.Info().Str("user", u.Username).Msg("✅ Discord adapter started")
	return nil
}

func (da *DiscordAdapter) Close() {
	if err := da.Session.Close(); err != nil {
		da.log.Warn().Err(err).Msg("closing discord session")
	}
}

func (da *DiscordAdapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == da.BotID {
		return
	}

	go da.Core.HandleMessage(da.ctx, core.IncomingMessage{
		Platform:  "discord",
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		Content:   m.Content,
		IsBot:     m.Author.Bot,
	}, da)
}

func (da *DiscordAdapter) SendText(ctx context.Context, chatID string, text string) error {
	_, err := da.Session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content:         truncate(text),
		AllowedMentions: allowMentions(),
	}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (da *DiscordAdapter) SendCard(ctx context.Context, chatID string, card core.Card) (string, error) {
	msg, err := da.Session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content:         card.Content,
		Embeds:          []*discordgo.MessageEmbed{toEmbed(card)},
		AllowedMentions: allowMentions(),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return msg.ID, nil
}

func (da *DiscordAdapter) AddReaction(ctx context.Context, chatID, messageID, emoji string) error {
	return mapError(da.Session.MessageReactionAdd(chatID, messageID, emoji, discordgo.WithContext(ctx)))
}

func (da *DiscordAdapter) Pin(ctx context.Context, chatID, messageID string) error {
	return mapError(da.Session.ChannelMessagePin(chatID, messageID, discordgo.WithContext(ctx)))
}

func (da *DiscordAdapter) Unpin(ctx context.Context, chatID, messageID string) error {
	return mapError(da.Session.ChannelMessageUnpin(chatID, messageID, discordgo.WithContext(ctx)))
}

// Reactors pages through every user that reacted with emoji.
func (da *DiscordAdapter) Reactors(ctx context.Context, chatID, messageID, emoji string) ([]core.User, error) {
	var out []core.User
	after := ""
	for {
		users, err := da.Session.MessageReactions(chatID, messageID, emoji, reactionPage, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError(err)
		}
		for _, u := range users {
			out = append(out, toUser(u))
		}
		if len(users) < reactionPage {
			return out, nil
		}
		after = users[len(users)-1].ID
	}
}

func toUser(u *discordgo.User) core.User {
	return core.User{
		ID:      u.ID,
		Name:    u.Username,
		Mention: u.Mention(),
		Bot:     u.Bot,
	}
}

func toEmbed(card core.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       card.Title,
		Description: card.Description,
		Color:       card.Color,
	}
	if card.Author != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: card.Author}
	}
	if card.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: card.Footer}
	}
	if card.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: card.ThumbnailURL}
	}
	for _, f := range card.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return embed
}

func allowMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{
			discordgo.AllowedMentionTypeEveryone,
			discordgo.AllowedMentionTypeUsers,
		},
	}
}

// truncate keeps text within Discord's limit, which counts characters.
func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxMessageLen-3]) + "..."
}

// mapError turns Discord permission failures into core.ErrPermission.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeMissingPermissions {
		return fmt.Errorf("%w: %s", core.ErrPermission, restErr.Message.Message)
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", core.ErrPermission, err)
	}
	return err
}
