package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type CommandContext struct {
	Ctx       context.Context
	Msg       IncomingMessage
	Responder Responder
	Bot       *Bot
	Args      []string
}

func (c CommandContext) Reply(text string) error {
	return c.Responder.SendText(c.Ctx, c.Msg.ChatID, text)
}

type CommandHandler func(ctx CommandContext) error

type command struct {
	help string
	// anyChannel commands may run outside the poll channel.
	anyChannel bool
	handler    CommandHandler
}

type CommandRegistry struct {
	commands map[string]command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]command),
	}
}

// Register adds a command that only runs in the poll channel.
func (r *CommandRegistry) Register(name, help string, handler CommandHandler) {
	r.commands[strings.ToLower(name)] = command{help: help, handler: handler}
}

func (r *CommandRegistry) RegisterGlobal(name, help string, handler CommandHandler) {
	r.commands[strings.ToLower(name)] = command{help: help, anyChannel: true, handler: handler}
}

func (r *CommandRegistry) Execute(name string, ctx CommandContext) bool {
	cmd, exists := r.commands[strings.ToLower(name)]
	if !exists {
		return false
	}

	if !cmd.anyChannel && ctx.Msg.ChatID != ctx.Bot.Polls.ChannelID() {
		_ = ctx.Reply("⚠️ You can only run this in the movie night channel!")
		return true
	}

	if err := cmd.handler(ctx); err != nil {
		ctx.Bot.Log.Error().Err(err).Str("command", name).Msg("command failed")
		_ = ctx.Reply(fmt.Sprintf("⚠️ Error executing command: %v", err))
	}
	return true
}

func (r *CommandRegistry) Help(prefix string) string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("`%s%s` %s\n", prefix, name, r.commands[name].help))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func RegisterDefaultCommands(b *Bot) {
	b.Commands.RegisterGlobal("help", "- show this message", func(ctx CommandContext) error {
		return ctx.Reply(ctx.Bot.Commands.Help(ctx.Bot.Config.Prefix))
	})

	b.Commands.Register("testpoll", "- post a poll right now", func(ctx CommandContext) error {
		_, err := ctx.Bot.Polls.Post(ctx.Ctx, Manual)
		if errors.Is(err, ErrPollActive) {
			return ctx.Reply(fmt.Sprintf("⚠️ A poll is already active! Use `%stallynow` or wait until it resets.", ctx.Bot.Config.Prefix))
		}
		if err != nil {
			return err
		}
		return ctx.Reply("✅ Test poll posted.")
	})

	b.Commands.Register("tallynow", "- count the active poll and announce the winners", func(ctx CommandContext) error {
		_, err := ctx.Bot.Polls.Tally(ctx.Ctx)
		if errors.Is(err, ErrNoActivePoll) {
			return ctx.Reply("⚠️ No active poll found.")
		}
		// other failures were already reported in the channel by the poll service
		return nil
	})

	b.Commands.Register("pollstatus", "- show whether a poll is running", func(ctx CommandContext) error {
		if msgID, ok := ctx.Bot.Polls.Active(); ok {
			return ctx.Reply(fmt.Sprintf("📌 A poll is active (message %s).", msgID))
		}
		return ctx.Reply("No active poll.")
	})
}
