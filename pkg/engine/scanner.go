package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSchedule    = "@every 1m"
	DefaultReminderSchedule = "@every 15m"
)

// Sweeper is the part of the Engine the Scanner drives.
type Sweeper interface {
	SweepElapsed(ctx context.Context) (SweepResult, error)
	SendReminders(ctx context.Context) (int, error)
}

// Scanner periodically sweeps elapsed instances and sends task reminders. It never
// holds an instance itself; every instance goes through Start.
type Scanner struct {
	sweeper          Sweeper
	logger           *slog.Logger
	sweepSchedule    string
	reminderSchedule string
	cron             *cron.Cron
	ctx              context.Context
	cancel           context.CancelFunc
}

// NewScanner creates a scanner. Empty schedules fall back to the defaults; "off" disables
// the reminder job.
func NewScanner(sweeper Sweeper, logger *slog.Logger, sweepSchedule, reminderSchedule string) *Scanner {
	if sweepSchedule == "" {
		sweepSchedule = DefaultSweepSchedule
	}

	if reminderSchedule == "" {
		reminderSchedule = DefaultReminderSchedule
	}

	return &Scanner{
		sweeper:          sweeper,
		logger:           logger.With("module", "scanner"),
		sweepSchedule:    sweepSchedule,
		reminderSchedule: reminderSchedule,
	}
}

func (s *Scanner) Start(ctx context.Context) error {
	if s.cron != nil {
		return errors.New("scanner already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	if _, err := s.cron.AddFunc(s.sweepSchedule, s.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.sweepSchedule, err)
	}

	if s.reminderSchedule != "off" {
		if _, err := s.cron.AddFunc(s.reminderSchedule, s.remind); err != nil {
			return fmt.Errorf("invalid reminder schedule %q: %w", s.reminderSchedule, err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scanner started", "sweep_schedule", s.sweepSchedule, "reminder_schedule", s.reminderSchedule)

	return nil
}

func (s *Scanner) sweep() {
	if _, err := s.sweeper.SweepElapsed(s.ctx); err != nil {
		s.logger.ErrorContext(s.ctx, "Sweep failed", "error", err)
	}
}

func (s *Scanner) remind() {
	if _, err := s.sweeper.SendReminders(s.ctx); err != nil {
		s.logger.ErrorContext(s.ctx, "Reminder run failed", "error", err)
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scanner) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	s.cancel()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Scanner stopped")

	return nil
}
