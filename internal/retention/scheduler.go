package retention

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carewise/carestore/pkg/logging"
)

// Sweep schedules are standard 5-field cron expressions evaluated in UTC.
var sweepCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseSchedule validates a sweep schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("sweep schedule is required")
	}
	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("sweep schedule must be UTC-only (timezone prefixes are not allowed)")
	}
	schedule, err := sweepCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	return schedule, nil
}

// Scheduler runs sweeps on a cron schedule until its context is cancelled.
type Scheduler struct {
	sweeper *Sweeper
	maxAge  time.Duration
	log     *logging.Logger
}

// NewScheduler creates a sweep scheduler.
func NewScheduler(sweeper *Sweeper, maxAge time.Duration, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	return &Scheduler{sweeper: sweeper, maxAge: maxAge, log: log}
}

// Run blocks, sweeping on the given schedule, until ctx is cancelled. An
// in-flight sweep finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context, expr string) error {
	if _, err := ParseSchedule(expr); err != nil {
		return err
	}

	runner := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithParser(sweepCronParser),
	)
	_, err := runner.AddFunc(expr, func() {
		if _, err := s.sweeper.Sweep(ctx, s.maxAge); err != nil {
			s.log.ErrorErr("scheduled sweep failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.log.Info("sweep scheduler started", map[string]any{
		"schedule": expr,
		"max_age":  s.maxAge.String(),
	})
	runner.Start()
	<-ctx.Done()
	<-runner.Stop().Done()
	return ctx.Err()
}
