package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLocations struct {
	locations []string
	err       error
}

func (s staticLocations) ListLocations(context.Context) ([]string, error) {
	return s.locations, s.err
}

func TestParseMonthlySchedule(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected MonthlySchedule
		wantErr  bool
	}{
		{name: "Empty string defaults", expr: "", expected: MonthlySchedule{Day: 1, Hour: 3, Minute: 0}},
		{name: "Full expression", expr: "30 4 2 * *", expected: MonthlySchedule{Day: 2, Hour: 4, Minute: 30}},
		{name: "Three fields", expr: "0 1 5", expected: MonthlySchedule{Day: 5, Hour: 1, Minute: 0}},
		{name: "Wildcards keep defaults", expr: "15 * * * *", expected: MonthlySchedule{Day: 1, Hour: 3, Minute: 15}},
		{name: "Extra whitespace", expr: "  5   6   7   *   *  ", expected: MonthlySchedule{Day: 7, Hour: 6, Minute: 5}},
		{name: "Day 29 rejected", expr: "0 3 29 * *", wantErr: true},
		{name: "Hour out of range", expr: "0 24 1 * *", wantErr: true},
		{name: "Not a number", expr: "a 3 1 * *", wantErr: true},
		{name: "Wrong field count", expr: "0 3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthlySchedule(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMonthlySchedule_Due(t *testing.T) {
	sched := MonthlySchedule{Day: 1, Hour: 3, Minute: 30}
	tests := []struct {
		name string
		at   time.Time
		due  bool
	}{
		{name: "Scheduled minute", at: time.Date(2025, 2, 1, 3, 30, 0, 0, time.UTC), due: true},
		{name: "Later the same day", at: time.Date(2025, 2, 1, 3, 31, 0, 0, time.UTC), due: true},
		{name: "Later in the month", at: time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC), due: true},
		{name: "One minute early", at: time.Date(2025, 2, 1, 3, 29, 59, 0, time.UTC), due: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.due, sched.Due(tt.at))
		})
	}
	assert.Equal(t, time.Date(2025, 2, 1, 3, 30, 0, 0, time.UTC), sched.Next(time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "30 3 1 * *", sched.String())
}

func newTestTrigger(t *testing.T, locations ScopeProvider, now time.Time) (*MonthlyTrigger, *fakeExecutor, chan Job) {
	t.Helper()
	exec := &fakeExecutor{}
	s, done := startScheduler(t, testConfig(), exec)

	cfg := DefaultMonthlyTriggerConfig()
	cfg.Location = time.UTC
	trigger := NewMonthlyTrigger(cfg, s, locations, zap.NewNop())
	trigger.now = func() time.Time { return now }
	return trigger, exec, done
}

func TestMonthlyTrigger_QueuesPreviousMonth(t *testing.T) {
	trigger, _, done := newTestTrigger(t,
		staticLocations{locations: []string{"L1", "L2"}},
		time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC),
	)

	assert.True(t, trigger.checkAndTrigger(context.Background()))

	var scopes []pnl.Scope
	for i := 0; i < 2; i++ {
		scopes = append(scopes, waitJob(t, done).Scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].LocationID < scopes[j].LocationID })
	assert.Equal(t, []pnl.Scope{
		{LocationID: "L1", Year: 2024, Month: 12},
		{LocationID: "L2", Year: 2024, Month: 12},
	}, scopes)

	assert.False(t, trigger.checkAndTrigger(context.Background()), "fires once per month")
}

func TestMonthlyTrigger_SkipsOutsideSchedule(t *testing.T) {
	trigger, exec, _ := newTestTrigger(t,
		staticLocations{locations: []string{"L1"}},
		time.Date(2025, 3, 1, 2, 59, 0, 0, time.UTC),
	)

	assert.False(t, trigger.checkAndTrigger(context.Background()))
	assert.Equal(t, 0, exec.callCount())
}

func TestMonthlyTrigger_CatchesUpAfterMissedMinute(t *testing.T) {
	now := time.Date(2025, 2, 1, 3, 5, 0, 0, time.UTC)
	trigger, _, done := newTestTrigger(t, staticLocations{locations: []string{"L1"}}, now)
	trigger.now = func() time.Time { return now }

	assert.True(t, trigger.checkAndTrigger(context.Background()))
	assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2025, Month: 1}, waitJob(t, done).Scope)

	now = time.Date(2025, 2, 2, 3, 0, 0, 0, time.UTC)
	assert.False(t, trigger.checkAndTrigger(context.Background()), "same month already handled")

	now = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	assert.True(t, trigger.checkAndTrigger(context.Background()), "process was down on the 1st")
	assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2025, Month: 2}, waitJob(t, done).Scope)
}

type flakyLocations struct {
	err error
}

func (f *flakyLocations) ListLocations(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"L1"}, nil
}

func TestMonthlyTrigger_RetriesAfterFailedRun(t *testing.T) {
	provider := &flakyLocations{err: errors.New("db down")}
	trigger, exec, done := newTestTrigger(t, provider, time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC))

	assert.False(t, trigger.checkAndTrigger(context.Background()))
	assert.Equal(t, 0, exec.callCount())

	provider.err = nil
	assert.True(t, trigger.checkAndTrigger(context.Background()))
	assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2024, Month: 12}, waitJob(t, done).Scope)
	assert.False(t, trigger.checkAndTrigger(context.Background()))
}

func TestMonthlyTrigger_TriggerMonth(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		trigger, _, _ := newTestTrigger(t, staticLocations{err: errors.New("db down")}, time.Now())
		_, err := trigger.TriggerMonth(context.Background(), 2025, 1)
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("empty location skipped", func(t *testing.T) {
		trigger, _, done := newTestTrigger(t, staticLocations{locations: []string{"", "L1"}}, time.Now())
		queued, err := trigger.TriggerMonth(context.Background(), 2025, 6)
		require.NoError(t, err)
		assert.Equal(t, 1, queued)
		assert.Equal(t, pnl.Scope{LocationID: "L1", Year: 2025, Month: 6}, waitJob(t, done).Scope)
	})
}

func TestMonthlyTrigger_StartStop(t *testing.T) {
	trigger, _, _ := newTestTrigger(t, staticLocations{}, time.Now())
	ctx := context.Background()
	require.NoError(t, trigger.Start(ctx))
	require.NoError(t, trigger.Start(ctx))
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))
}
