package core

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type ScheduleConfig struct {
	Timezone string `toml:"timezone"`
	// Post and Tally are standard five-field cron specs evaluated in Timezone.
	Post  string `toml:"post"`
	Tally string `toml:"tally"`
}

type Scheduler struct {
	cron    *cron.Cron
	polls   *PollService
	log     zerolog.Logger
	postID  cron.EntryID
	tallyID cron.EntryID
	ctx     context.Context
}

func NewScheduler(cfg ScheduleConfig, polls *PollService, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		polls: polls,
		log:   log.With().Str("component", "scheduler").Logger(),
		ctx:   context.Background(),
	}
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if s.postID, err = s.cron.AddFunc(cfg.Post, s.runPost); err != nil {
		return nil, fmt.Errorf("parse post schedule %q: %w", cfg.Post, err)
	}
	if s.tallyID, err = s.cron.AddFunc(cfg.Tally, s.runTally); err != nil {
		return nil, fmt.Errorf("parse tally schedule %q: %w", cfg.Tally, err)
	}
	return s, nil
}

// Start runs the triggers in the background until Stop. Jobs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info().Time("next_post", s.NextPost()).Time("next_tally", s.NextTally()).Msg("scheduler started")
}

// Stop prevents new runs and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) NextPost() time.Time {
	return s.next(s.postID)
}

func (s *Scheduler) NextTally() time.Time {
	return s.next(s.tallyID)
}

func (s *Scheduler) next(id cron.EntryID) time.Time {
	e := s.cron.Entry(id)
	if !e.Next.IsZero() {
		return e.Next
	}
	return e.Schedule.Next(time.Now().In(s.cron.Location()))
}

func (s *Scheduler) runPost() {
	_, err := s.polls.Post(s.ctx, Scheduled)
	switch {
	case errors.Is(err, ErrPollActive):
		s.log.Info().Msg("skipping scheduled poll, one is already active")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled poll failed")
	}
}

func (s *Scheduler) runTally() {
	_, err := s.polls.Tally(s.ctx)
	switch {
	case errors.Is(err, ErrNoActivePoll):
		s.log.Info().Msg("skipping scheduled tally, no active poll")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled tally failed")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
