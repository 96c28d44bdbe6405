// Package scheduler fires the daily menu and the lunch poll at wall-clock times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/Xausdorf/mensa-bot/internal/render"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimezone  = "Europe/Berlin"
	defaultMenuSpec  = "56 17 * * 1-5"
	defaultOpenSpec  = "0 10 * * 1-5"
	defaultCloseSpec = "30 11 * * 1-5"
	jobTimeout       = time.Minute
)

// Announcer - the entry points the scheduler triggers.
type Announcer interface {
	PostMenu(ctx context.Context, channelID string, offset int, filter render.LineFilter)
	OpenPoll(ctx context.Context, channelID string) (bool, error)
	ClosePoll(ctx context.Context, channelID string) (*domain.Result, bool, error)
}

type Config struct {
	channelID string
	location  *time.Location
	menuSpec  string
	openSpec  string
	closeSpec string
}

// LoadConfig reads the schedule. Without SCHEDULE_CHANNEL scheduling is disabled.
func LoadConfig() Config {
	var cfg Config

	cfg.channelID = os.Getenv("SCHEDULE_CHANNEL")

	tz := os.Getenv("SCHEDULE_TZ")
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatal().Err(err).Str("tz", tz).Msg("Unknown schedule timezone")
	}
	cfg.location = loc

	cfg.menuSpec = getenvDefault("MENU_CRON", defaultMenuSpec)
	cfg.openSpec = getenvDefault("POLL_OPEN_CRON", defaultOpenSpec)
	cfg.closeSpec = getenvDefault("POLL_CLOSE_CRON", defaultCloseSpec)

	return cfg
}

func (c Config) Enabled() bool {
	return c.channelID != ""
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type Scheduler struct {
	cron      *cron.Cron
	announcer Announcer
	channelID string
}

func New(cfg Config, announcer Announcer) (*Scheduler, error) {
	loc := cfg.location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		announcer: announcer,
		channelID: cfg.channelID,
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"menu", cfg.menuSpec, s.postMenu},
		{"poll_open", cfg.openSpec, s.openPoll},
		{"poll_close", cfg.closeSpec, s.closePoll},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		run := job.run
		name := job.name
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(name, run) }); err != nil {
			return nil, fmt.Errorf("could not schedule %s job %q: %w", name, job.spec, err)
		}
		log.Info().Str("job", name).Str("spec", job.spec).Str("tz", loc.String()).Msg("Job scheduled")
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runJob(name string, run func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	log.Debug().Str("job", name).Str("channel", s.channelID).Msg("Running scheduled job")
	run(ctx)
}

func (s *Scheduler) postMenu(ctx context.Context) {
	s.announcer.PostMenu(ctx, s.channelID, 0, render.RegularLines)
}

func (s *Scheduler) openPoll(ctx context.Context) {
	opened, err := s.announcer.OpenPoll(ctx, s.channelID)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled poll open failed")
		return
	}
	if !opened {
		log.Info().Str("channel", s.channelID).Msg("Scheduled open skipped, poll already running")
	}
}

func (s *Scheduler) closePoll(ctx context.Context) {
	_, closed, err := s.announcer.ClosePoll(ctx, s.channelID)
	if err != nil {
		if errors.Is(err, usecase.ErrPollNotFound) {
			log.Info().Str("channel", s.channelID).Msg("Scheduled close skipped, no poll")
			return
		}
		log.Warn().Err(err).Msg("Scheduled poll close failed")
		return
	}
	if !closed {
		log.Info().Str("channel", s.channelID).Msg("Scheduled close skipped, poll already closed")
	}
}
