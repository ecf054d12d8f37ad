package scheduler

import (
	"errors"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
)

var (
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	ErrJobQueueFull        = errors.New("refresh queue is full")

	// ErrRefreshPending is returned by ScheduleRefresh while an earlier
	// refresh of the same location-month is queued, running or waiting to retry.
	ErrRefreshPending = errors.New("refresh already pending for scope")

	// ErrInvalidConfig wraps schedule and worker settings that cannot be used.
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)

// IsPermanent reports whether a refresh that failed with err would fail
// the same way on retry: a malformed scope or rejected input.
func IsPermanent(err error) bool {
	return errors.Is(err, pnl.ErrInvalidScope) || errors.Is(err, shared.ErrInvalidInput)
}
