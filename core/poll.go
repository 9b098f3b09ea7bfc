package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrPollActive   = errors.New("a poll is already active")
	ErrNoActivePoll = errors.New("no active poll")
)

// Trigger says what started a poll.
type Trigger int

const (
	Scheduled Trigger = iota
	Manual
)

func (t Trigger) String() string {
	if t == Manual {
		return "manual"
	}
	return "scheduled"
}

type PollConfig struct {
	Options      []Option `toml:"options"`
	HostEmoji    string   `toml:"host_emoji"`
	Author       string   `toml:"author"`
	Footer       string   `toml:"footer"`
	ThumbnailURL string   `toml:"thumbnail_url"`

	// QuietMentions drops the room-wide mention from the poll and the results.
	QuietMentions bool `toml:"quiet_mentions"`
}

// Formatter turns poll state into chat messages.
type Formatter interface {
	PollCard(cfg PollConfig, trigger Trigger) Card
	ResultsCard(cfg PollConfig, t Tally) Card
	HostPing(hosts []User) string
	TallyFailed(err error) string
}

// PollService owns the single active poll of the channel.
type PollService struct {
	mu        sync.Mutex
	platform  Platform
	format    Formatter
	cfg       PollConfig
	channelID string
	log       zerolog.Logger

	active string
}

func NewPollService(platform Platform, format Formatter, cfg PollConfig, channelID string, log zerolog.Logger) *PollService {
	return &PollService{
		platform:  platform,
		format:    format,
		cfg:       cfg,
		channelID: channelID,
		log:       log.With().Str("component", "poll").Str("channel", channelID).Logger(),
	}
}

func (s *PollService) ChannelID() string {
	return s.channelID
}

// Active returns the message reference of the running poll.
func (s *PollService) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// Post sends a new poll and records it as active.
func (s *PollService) Post(ctx context.Context, trigger Trigger) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return "", ErrPollActive
	}

	msgID, err := s.platform.SendCard(ctx, s.channelID, s.format.PollCard(s.cfg, trigger))
	if err != nil {
		return "", fmt.Errorf("send poll: %w", err)
	}
	// the message exists from here on, so it must be tallied even if decorating it fails
	s.active = msgID

	for _, opt := range s.cfg.Options {
		if err := s.platform.AddReaction(ctx, s.channelID, msgID, opt.Emoji); err != nil {
			return msgID, fmt.Errorf("add reaction %s: %w", opt.Emoji, err)
		}
	}
	if err := s.platform.AddReaction(ctx, s.channelID, msgID, s.cfg.HostEmoji); err != nil {
		return msgID, fmt.Errorf("add host reaction: %w", err)
	}

	if err := s.platform.Pin(ctx, s.channelID, msgID); err != nil {
		s.logPinError("pin", msgID, err)
	}

	s.log.Info().Str("message_id", msgID).Stringer("trigger", trigger).Msg("📌 Poll posted")
	return msgID, nil
}

// Tally counts the active poll, announces the result and clears the poll.
// The poll is cleared even when counting fails; the failure is reported in the channel.
func (s *PollService) Tally(ctx context.Context) (Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return Tally{}, ErrNoActivePoll
	}
	msgID := s.active
	defer func() { s.active = "" }()

	t, err := s.tally(ctx, msgID)
	if err != nil {
		s.log.Error().Err(err).Str("message_id", msgID).Msg("tally failed")
		if sendErr := s.platform.SendText(ctx, s.channelID, s.format.TallyFailed(err)); sendErr != nil {
			s.log.Error().Err(sendErr).Msg("failed to report tally failure")
		}
	}

	if unpinErr := s.platform.Unpin(ctx, s.channelID, msgID); unpinErr != nil {
		s.logPinError("unpin", msgID, unpinErr)
	}
	return t, err
}

func (s *PollService) tally(ctx context.Context, msgID string) (Tally, error) {
	reactors := make(map[string][]User, len(s.cfg.Options)+1)
	emojis := make([]string, 0, len(s.cfg.Options)+1)
	for _, opt := range s.cfg.Options {
		emojis = append(emojis, opt.Emoji)
	}
	emojis = append(emojis, s.cfg.HostEmoji)

	for _, emoji := range emojis {
		users, err := s.platform.Reactors(ctx, s.channelID, msgID, emoji)
		if err != nil {
			return Tally{}, fmt.Errorf("read reactions for %s: %w", emoji, err)
		}
		reactors[emoji] = users
	}

	t := Count(s.cfg.Options, reactors, s.cfg.HostEmoji)

	if _, err := s.platform.SendCard(ctx, s.channelID, s.format.ResultsCard(s.cfg, t)); err != nil {
		return t, fmt.Errorf("send results: %w", err)
	}
	if len(t.Hosts) > 0 {
		if err := s.platform.SendText(ctx, s.channelID, s.format.HostPing(t.Hosts)); err != nil {
			return t, fmt.Errorf("ping hosts: %w", err)
		}
	}

	s.log.Info().
		Str("message_id", msgID).
		Int("max_votes", t.MaxVotes).
		Int("winners", len(t.Winners)).
		Int("hosts", len(t.Hosts)).
		Msg("📊 Poll tallied")
	return t, nil
}

func (s *PollService) logPinError(action, msgID string, err error) {
	if errors.Is(err, ErrPermission) {
		s.log.Warn().Err(err).Str("message_id", msgID).Msgf("⚠️ Missing permission to %s poll", action)
		return
	}
	s.log.Error().Err(err).Str("message_id", msgID).Msgf("failed to %s poll", action)
}
