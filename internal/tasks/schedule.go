package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/robfig/cron/v3"
)

// cronParser accepts a leading seconds field, matching cron.WithSeconds.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronLogger adapts a [log.Logger] to [cron.Logger].
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// Scheduler triggers the [DailyRun] on a cron schedule.
type Scheduler struct {
	run        *DailyRun
	sendEmails bool
	schedule   cron.Schedule
	location   *time.Location
	cron       *cron.Cron
	logger     *log.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
}

// NewScheduler parses the schedule section and registers the daily run.
func NewScheduler(run *DailyRun, cfg shared.ScheduleConfig, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "scheduler")

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", shared.ErrInvalidConfig, cfg.Timezone, err)
		}
		loc = l
	}

	schedule, err := cronParser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", shared.ErrInvalidConfig, cfg.Cron, err)
	}

	adapter := cronLogger{logger: logger}
	s := &Scheduler{
		run:        run,
		sendEmails: cfg.SendEmails,
		schedule:   schedule,
		location:   loc,
		logger:     logger,
		ctx:        context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.trigger))
	return s, nil
}

// Start begins firing on schedule. Runs use ctx and stop when it is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx = ctx
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", "next", s.Next(time.Now()))
	return nil
}

// Stop prevents new runs and returns a context that is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.logger.Info("scheduler stopped")
	return s.cron.Stop()
}

// Next returns the first scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Info("daily run triggered", "send_emails", s.sendEmails)
	if _, err := s.run.Run(ctx, s.sendEmails, nil); err != nil {
		s.logger.Error("daily run failed", "err", err)
	}
}
