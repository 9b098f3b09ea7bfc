package core

import (
	"context"
	"errors"
)

// ErrPermission is returned by a Platform when the bot lacks the rights for an action.
var ErrPermission = errors.New("missing permission")

type IncomingMessage struct {
	Platform  string
	UserID    string
	UserName  string
	ChatID    string
	MessageID string
	Content   string
	IsBot     bool
}

type User struct {
	ID      string
	Name    string
	Mention string
	Bot     bool
}

type CardField struct {
	Name   string
	Value  string
	Inline bool
}

// Card is a rich message. Platforms without embeds render it as formatted text.
type Card struct {
	Content      string
	Title        string
	Description  string
	Author       string
	Footer       string
	ThumbnailURL string
	Color        int
	Fields       []CardField
}

type Responder interface {
	SendText(ctx context.Context, chatID string, text string) error
}

// Platform is everything the poll needs from a chat service.
type Platform interface {
	Responder
	SendCard(ctx context.Context, chatID string, card Card) (messageID string, err error)
	AddReaction(ctx context.Context, chatID, messageID, emoji string) error
	Pin(ctx context.Context, chatID, messageID string) error
	Unpin(ctx context.Context, chatID, messageID string) error
	Reactors(ctx context.Context, chatID, messageID, emoji string) ([]User, error)
}
