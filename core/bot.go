package core

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

type BotConfig struct {
	Name   string `toml:"name"`
	Prefix string `toml:"prefix"`
}

type Bot struct {
	Config   *BotConfig
	Polls    *PollService
	Commands *CommandRegistry
	Log      zerolog.Logger
}

func NewBot(cfg *BotConfig, polls *PollService, log zerolog.Logger) *Bot {
	b := &Bot{
		Config:   cfg,
		Polls:    polls,
		Commands: NewCommandRegistry(),
		Log:      log.With().Str("component", "bot").Logger(),
	}
	RegisterDefaultCommands(b)
	return b
}

func (b *Bot) HandleMessage(ctx context.Context, msg IncomingMessage, responder Responder) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error().Interface("panic", r).Str("platform", msg.Platform).Msg("PANIC in HandleMessage")
		}
	}()

	if msg.IsBot {
		return
	}

	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, b.Config.Prefix) {
		return
	}

	parts := strings.Fields(strings.TrimPrefix(content, b.Config.Prefix))
	if len(parts) == 0 {
		return
	}

	cctx := CommandContext{
		Ctx:       ctx,
		Msg:       msg,
		Responder: responder,
		Bot:       b,
		Args:      parts[1:],
	}
	if b.Commands.Execute(parts[0], cctx) {
		b.Log.Debug().Str("command", parts[0]).Str("user", msg.UserID).Msg("command handled")
	}
}
