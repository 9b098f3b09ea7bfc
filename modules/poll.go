package modules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"psyduck/core"
)

const (
	ColorYellow = 0xf1c40f
	ColorGreen  = 0x2ecc71

	// MaxFieldLen is the longest field value Discord accepts in an embed.
	MaxFieldLen = 1024
)

// MovieNight renders the weekly movie night poll. Everyone is the platform's
// room-wide mention, "@everyone" on Discord and "@room" on Matrix.
type MovieNight struct {
	Everyone string
}

func (m MovieNight) PollCard(cfg core.PollConfig, trigger core.Trigger) core.Card {
	choices := make([]string, 0, len(cfg.Options))
	for _, opt := range cfg.Options {
		choices = append(choices, fmt.Sprintf("%s %s", opt.Emoji, opt.Label))
	}

	var sb strings.Builder
	if trigger == core.Manual {
		sb.WriteString("psyduck says: **PSY PSY \n (MOVIE NIGHT POLL TIME!)**\n\n")
		sb.WriteString("What days work for you? Choose 1 or more!\n\n")
	} else {
		sb.WriteString("psyduck says: **PSY PSY (MOVIE NIGHT POLL TIME! what days work this week?)**\n\n")
		sb.WriteString("You can choose more than one!\n\n")
	}
	sb.WriteString(strings.Join(choices, " "))
	sb.WriteString(fmt.Sprintf("\n\n%s = Can host this week", cfg.HostEmoji))

	return core.Card{
		Content:      m.mention(cfg),
		Title:        "🎥 Movie Night Poll",
		Description:  sb.String(),
		Author:       cfg.Author,
		Footer:       cfg.Footer,
		ThumbnailURL: cfg.ThumbnailURL,
		Color:        ColorYellow,
	}
}

func (m MovieNight) ResultsCard(cfg core.PollConfig, t core.Tally) core.Card {
	card := core.Card{
		Content: m.mention(cfg),
		Title:   "📊 Movie Night Poll Results",
		Color:   ColorGreen,
	}

	if len(t.Winners) == 0 {
		card.Fields = append(card.Fields, core.CardField{Name: "No one voted 😢", Value: "Better luck next week!"})
	}
	for _, w := range t.Winners {
		card.Fields = append(card.Fields, core.CardField{
			Name:  fmt.Sprintf("🏆 **%s**", w.Option.Label),
			Value: fitMentions(fmt.Sprintf("%d vote(s) from: ", len(w.Voters)), w.Voters, " "),
		})
	}

	hosts := "No one volunteered yet."
	if len(t.Hosts) > 0 {
		hosts = fitMentions("", t.Hosts, ", ")
	}
	card.Fields = append(card.Fields, core.CardField{Name: cfg.HostEmoji + " Host volunteers:", Value: hosts})
	return card
}

func (m MovieNight) HostPing(hosts []core.User) string {
	return "📣 Pinging host(s): " + mentions(hosts, " ")
}

func (m MovieNight) TallyFailed(err error) string {
	return fmt.Sprintf("⚠️ Couldn’t tally the poll: %v", err)
}

func (m MovieNight) mention(cfg core.PollConfig) string {
	if cfg.QuietMentions {
		return ""
	}
	return m.Everyone
}

func mentions(users []core.User, sep string) string {
	return strings.Join(mentionList(users), sep)
}

func mentionList(users []core.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.Mention != "" {
			out = append(out, u.Mention)
		} else {
			out = append(out, u.Name)
		}
	}
	return out
}

// fitMentions lists as many users as fit in MaxFieldLen and counts the rest.
func fitMentions(prefix string, users []core.User, sep string) string {
	names := mentionList(users)
	for shown := len(names); shown > 0; shown-- {
		s := prefix + strings.Join(names[:shown], sep)
		if hidden := len(names) - shown; hidden > 0 {
			s += fmt.Sprintf(" and %d more", hidden)
		}
		if utf8.RuneCountInString(s) <= MaxFieldLen {
			return s
		}
	}
	return fmt.Sprintf("%s%d people", prefix, len(names))
}
