package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"go.uber.org/zap"
)

// ScopeProvider lists the locations that get a monthly refresh.
type ScopeProvider interface {
	ListLocations(ctx context.Context) ([]string, error)
}

// MonthlySchedule is the point in each month at which the previous month is closed.
type MonthlySchedule struct {
	Day    int
	Hour   int
	Minute int
}

// DefaultMonthlySchedule runs at 03:00 on the first of the month.
func DefaultMonthlySchedule() MonthlySchedule {
	return MonthlySchedule{Day: 1, Hour: 3, Minute: 0}
}

// String renders the schedule as a cron expression.
func (m MonthlySchedule) String() string {
	return fmt.Sprintf("%d %d %d * *", m.Minute, m.Hour, m.Day)
}

// Next returns the scheduled instant in the month of t, in t's location.
func (m MonthlySchedule) Next(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), m.Day, m.Hour, m.Minute, 0, 0, t.Location())
}

// Due reports whether the scheduled instant of t's month has been reached.
// Every later moment of the month is due as well, so a missed tick or a
// process that was down at the scheduled minute still catches up.
func (m MonthlySchedule) Due(t time.Time) bool {
	return !t.Before(m.Next(t))
}

// ParseMonthlySchedule parses "minute hour day-of-month * *". Empty input or
// "*" fields take the defaults. Days are limited to 1-28 so every month has one.
func ParseMonthlySchedule(expr string) (MonthlySchedule, error) {
	sched := DefaultMonthlySchedule()

	parts := strings.Fields(expr)
	if len(parts) == 0 {
		return sched, nil
	}
	if len(parts) != 3 && len(parts) != 5 {
		return sched, fmt.Errorf("%w: expected \"M H D * *\", got %q", ErrInvalidConfig, expr)
	}

	fields := []struct {
		name     string
		dst      *int
		min, max int
	}{
		{"minute", &sched.Minute, 0, 59},
		{"hour", &sched.Hour, 0, 23},
		{"day", &sched.Day, 1, 28},
	}
	for i, f := range fields {
		if parts[i] == "*" {
			continue
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return DefaultMonthlySchedule(), fmt.Errorf("%w: %s %q is not a number", ErrInvalidConfig, f.name, parts[i])
		}
		if v < f.min || v > f.max {
			return DefaultMonthlySchedule(), fmt.Errorf("%w: %s must be %d-%d, got %d", ErrInvalidConfig, f.name, f.min, f.max, v)
		}
		*f.dst = v
	}
	return sched, nil
}

// MonthlyTriggerConfig holds configuration for the monthly trigger
type MonthlyTriggerConfig struct {
	Schedule      MonthlySchedule
	CheckInterval time.Duration
	Location      *time.Location
}

// DefaultMonthlyTriggerConfig returns default monthly trigger configuration
func DefaultMonthlyTriggerConfig() MonthlyTriggerConfig {
	return MonthlyTriggerConfig{
		Schedule:      DefaultMonthlySchedule(),
		CheckInterval: time.Minute,
		Location:      time.Local,
	}
}

// MonthlyTrigger enqueues a refresh of the previous month for every location.
type MonthlyTrigger struct {
	config    MonthlyTriggerConfig
	scheduler *Scheduler
	provider  ScopeProvider
	logger    *zap.Logger
	now       func() time.Time

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	isRunning    bool
	lastRunMonth string
}

// NewMonthlyTrigger creates a new monthly trigger
func NewMonthlyTrigger(
	config MonthlyTriggerConfig,
	scheduler *Scheduler,
	provider ScopeProvider,
	logger *zap.Logger,
) *MonthlyTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &MonthlyTrigger{
		config:    config,
		scheduler: scheduler,
		provider:  provider,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the trigger loop
func (t *MonthlyTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Monthly trigger started",
		zap.String("schedule", t.config.Schedule.String()),
		zap.Duration("check_interval", t.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (t *MonthlyTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Monthly trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MonthlyTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	t.checkAndTrigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger fires once per calendar month, on the first check at or
// after the scheduled instant. The month is only marked done once the
// locations were listed, so a failed run is retried on the next tick.
func (t *MonthlyTrigger) checkAndTrigger(ctx context.Context) bool {
	now := t.now().In(t.config.Location)
	currentMonth := now.Format("2006-01")

	t.mu.Lock()
	due := t.lastRunMonth != currentMonth && t.config.Schedule.Due(now)
	t.mu.Unlock()
	if !due {
		return false
	}

	prev := pnl.Scope{Year: now.Year(), Month: int(now.Month())}.PreviousMonth()
	t.logger.Info("Triggering monthly refresh",
		zap.Int("year", prev.Year),
		zap.Int("month", prev.Month),
	)
	if _, err := t.TriggerMonth(ctx, prev.Year, prev.Month); err != nil {
		t.logger.Error("Monthly refresh trigger failed", zap.Error(err))
		return false
	}

	t.mu.Lock()
	t.lastRunMonth = currentMonth
	t.mu.Unlock()
	return true
}

// TriggerMonth queues a refresh of year/month for every location and returns
// how many jobs were queued. Per-location submit failures are logged and skipped.
func (t *MonthlyTrigger) TriggerMonth(ctx context.Context, year, month int) (int, error) {
	locations, err := t.provider.ListLocations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list locations: %w", err)
	}

	queued := 0
	for _, loc := range locations {
		scope := pnl.Scope{LocationID: loc, Year: year, Month: month}
		if err := t.scheduler.ScheduleRefresh(scope); err != nil {
			if errors.Is(err, ErrRefreshPending) {
				t.logger.Debug("Refresh already pending", zap.String("scope", scope.String()))
				continue
			}
			t.logger.Error("Failed to schedule refresh",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	t.logger.Info("Monthly refresh scheduled",
		zap.Int("locations", len(locations)),
		zap.Int("queued", queued),
	)
	return queued, nil
}
