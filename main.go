package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"psyduck/core"
	"psyduck/modules"
	"psyduck/platforms/discord"
	"psyduck/platforms/matrix"
)

// platform is a chat connection that can carry the poll and feed commands to the bot.
type platform interface {
	core.Platform
	Start(ctx context.Context, bot *core.Bot) error
}

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := NewLogger(config.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		log.Fatal().Err(err).Msg("Bot failed")
	}
	log.Info().Msg("bot exited")
}

func run(ctx context.Context, config *Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, everyone, closeFn, err := connect(ctx, cancel, config, log)
	if err != nil {
		return err
	}
	defer closeFn()

	polls := core.NewPollService(p, modules.MovieNight{Everyone: everyone}, config.Poll, config.ChannelID(), log)
	bot := core.NewBot(&config.Bot, polls, log)

	scheduler, err := core.NewScheduler(config.Schedule, polls, log)
	if err != nil {
		return err
	}

	log.Info().Str("platform", config.Platform).Str("channel", config.ChannelID()).Msg("🚀 Starting bot...")
	if err := p.Start(ctx, bot); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	<-ctx.Done()
	if w, ok := p.(interface{ Wait() error }); ok {
		return w.Wait()
	}
	return nil
}

func connect(ctx context.Context, cancel context.CancelFunc, config *Config, log zerolog.Logger) (platform, string, func(), error) {
	switch config.Platform {
	case PlatformMatrix:
		client, err := matrix.GetMatrixClient(ctx, &config.Matrix, log)
		if err != nil {
			return nil, "", nil, fmt.Errorf("matrix auth failed: %w", err)
		}
		if err := matrix.InitCrypto(ctx, client, config.Matrix.CryptoDBPath, config.Matrix.PickleKey, log); err != nil {
			return nil, "", nil, err
		}
		log.Info().Stringer("user", client.UserID).Str("device", string(client.DeviceID)).Msg("✅ Successfully logged in")
		if config.Bot.Name != "" {
			if err := client.SetDisplayName(ctx, config.Bot.Name); err != nil {
				log.Warn().Err(err).Msg("⚠️ Failed to set display name")
			}
		}
		return newSyncingMatrix(matrix.NewMatrixAdapter(client, &config.Matrix, log), cancel), matrix.Everyone, func() {}, nil
	default:
		adapter, err := discord.NewDiscordAdapter(config.Discord.Token, log)
		if err != nil {
			return nil, "", nil, fmt.Errorf("create discord session: %w", err)
		}
		return adapter, "@everyone", adapter.Close, nil
	}
}

// syncingMatrix runs the blocking Matrix sync loop in the background so both
// platforms start the same way. The bot shuts down when the sync loop ends,
// and Wait reports why.
type syncingMatrix struct {
	*matrix.MatrixAdapter
	cancel context.CancelFunc
	done   chan error
}

func newSyncingMatrix(adapter *matrix.MatrixAdapter, cancel context.CancelFunc) *syncingMatrix {
	return &syncingMatrix{MatrixAdapter: adapter, cancel: cancel, done: make(chan error, 1)}
}

func (m *syncingMatrix) Start(ctx context.Context, bot *core.Bot) error {
	go func() {
		defer m.cancel()
		err := m.MatrixAdapter.Start(ctx, bot)
		if err != nil {
			err = fmt.Errorf("matrix sync stopped: %w", err)
		}
		m.done <- err
	}()
	return nil
}

// Wait blocks until the sync loop has returned.
func (m *syncingMatrix) Wait() error {
	return <-m.done
}
