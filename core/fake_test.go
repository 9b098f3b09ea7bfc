package core

import (
	"context"
	"fmt"
	"sync"
)

// fakePlatform records outbound calls and serves reactions from memory.
type fakePlatform struct {
	mu sync.Mutex

	nextID    int
	cards     []Card
	texts     []string
	reactions map[string][]string // message id -> emojis added by the bot
	pinned    map[string]bool
	reactors  map[string][]User // emoji -> users

	sendCardErr error
	reactErr    error
	pinErr      error
	reactorsErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		reactions: make(map[string][]string),
		pinned:    make(map[string]bool),
		reactors:  make(map[string][]User),
	}
}

func (f *fakePlatform) SendText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakePlatform) SendCard(_ context.Context, _ string, card Card) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendCardErr != nil {
		return "", f.sendCardErr
	}
	f.nextID++
	f.cards = append(f.cards, card)
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakePlatform) AddReaction(_ context.Context, _, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactErr != nil {
		return f.reactErr
	}
	f.reactions[messageID] = append(f.reactions[messageID], emoji)
	return nil
}

func (f *fakePlatform) Pin(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return f.pinErr
	}
	f.pinned[messageID] = true
	return nil
}

func (f *fakePlatform) Unpin(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return f.pinErr
	}
	delete(f.pinned, messageID)
	return nil
}

func (f *fakePlatform) Reactors(_ context.Context, _, _, emoji string) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactorsErr != nil {
		return nil, f.reactorsErr
	}
	return f.reactors[emoji], nil
}

// plainFormatter renders just enough for assertions.
type plainFormatter struct{}

func (plainFormatter) PollCard(cfg PollConfig, trigger Trigger) Card {
	return Card{Title: "poll", Description: trigger.String()}
}

func (plainFormatter) ResultsCard(cfg PollConfig, t Tally) Card {
	c := Card{Title: "results"}
	for _, w := range t.Winners {
		c.Fields = append(c.Fields, CardField{Name: w.Option.Label, Value: fmt.Sprint(len(w.Voters))})
	}
	return c
}

func (plainFormatter) HostPing(hosts []User) string {
	return fmt.Sprintf("hosts:%d", len(hosts))
}

func (plainFormatter) TallyFailed(err error) string {
	return "failed: " + err.Error()
}

var testPollConfig = PollConfig{
	Options: []Option{
		{Emoji: "🇹", Label: "Tuesday"},
		{Emoji: "🇼", Label: "Wednesday"},
		{Emoji: "🇷", Label: "Thursday"},
		{Emoji: "🌞", Label: "Sunday"},
	},
	HostEmoji: "✅",
}

func user(id string) User {
	return User{ID: id, Name: id, Mention: "<@" + id + ">"}
}

func botUser(id string) User {
	u := user(id)
	u.Bot = true
	return u
}
