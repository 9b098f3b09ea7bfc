package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"psyduck/core"
	"psyduck/platforms/discord"
	"psyduck/platforms/matrix"
)

const (
	PlatformDiscord = "discord"
	PlatformMatrix  = "matrix"

	psyduckArtwork = "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork/54.png"
)

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type Config struct {
	Platform string              `toml:"platform"`
	Discord  discord.Config      `toml:"discord"`
	Matrix   matrix.Config       `toml:"matrix"`
	Bot      core.BotConfig      `toml:"bot"`
	Poll     core.PollConfig     `toml:"poll"`
	Schedule core.ScheduleConfig `toml:"schedule"`
	Log      LogConfig           `toml:"log"`
}

// envOverrides are the environment values that win over config.toml.
type envOverrides struct {
	Platform         string `env:"POLLBOT_PLATFORM"`
	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`
	MatrixRoomID     string `env:"MATRIX_ROOM_ID"`
	LogLevel         string `env:"POLLBOT_LOG_LEVEL"`
}

// LoadConfig reads .env, then the TOML file at path if it exists, then the
// environment. Missing values fall back to the weekly movie night defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var config Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	config.applyEnv(overrides)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv(o envOverrides) {
	setIf(&c.Platform, o.Platform)
	setIf(&c.Discord.Token, o.DiscordToken)
	setIf(&c.Discord.ChannelID, o.DiscordChannelID)
	setIf(&c.Matrix.RoomID, o.MatrixRoomID)
	setIf(&c.Log.Level, o.LogLevel)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Platform == "" {
		c.Platform = PlatformDiscord
	}
	if c.Bot.Name == "" {
		c.Bot.Name = "Psyduck Bot"
	}
	if c.Bot.Prefix == "" {
		c.Bot.Prefix = "!"
	}
	if len(c.Poll.Options) == 0 {
		c.Poll.Options = []core.Option{
			{Emoji: "🇹", Label: "Tuesday"},
			{Emoji: "🇼", Label: "Wednesday"},
			{Emoji: "🇷", Label: "Thursday"},
			{Emoji: "🌞", Label: "Sunday"},
		}
	}
	if c.Poll.HostEmoji == "" {
		c.Poll.HostEmoji = "✅"
	}
	if c.Poll.Author == "" {
		c.Poll.Author = c.Bot.Name
	}
	if c.Poll.Footer == "" {
		c.Poll.Footer = "🕒 Poll ends Tuesday at noon"
	}
	if c.Poll.ThumbnailURL == "" {
		c.Poll.ThumbnailURL = psyduckArtwork
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "America/New_York"
	}
	if c.Schedule.Post == "" {
		c.Schedule.Post = "0 9 * * 0"
	}
	if c.Schedule.Tally == "" {
		c.Schedule.Tally = "0 12 * * 2"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Matrix.CredentialsDBPath == "" {
		c.Matrix.CredentialsDBPath = "credentials.json"
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Platform {
	case PlatformDiscord:
		if c.Discord.Token == "" {
			errs = append(errs, errors.New("DISCORD_TOKEN must be set"))
		}
		if c.Discord.ChannelID == "" {
			errs = append(errs, errors.New("DISCORD_CHANNEL_ID must be set"))
		}
	case PlatformMatrix:
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" {
			errs = append(errs, errors.New("matrix homeserver and user_id must be set"))
		}
		if c.Matrix.RoomID == "" {
			errs = append(errs, errors.New("matrix room_id must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown platform %q", c.Platform))
	}

	seen := make(map[string]bool, len(c.Poll.Options))
	for _, opt := range c.Poll.Options {
		if opt.Emoji == "" || opt.Label == "" {
			errs = append(errs, errors.New("poll options need an emoji and a label"))
			continue
		}
		if seen[opt.Emoji] || opt.Emoji == c.Poll.HostEmoji {
			errs = append(errs, fmt.Errorf("duplicate poll emoji %s", opt.Emoji))
		}
		seen[opt.Emoji] = true
	}
	return errors.Join(errs...)
}

// ChannelID is the room the poll lives in on the selected platform.
func (c *Config) ChannelID() string {
	if c.Platform == PlatformMatrix {
		return c.Matrix.RoomID
	}
	return c.Discord.ChannelID
}
