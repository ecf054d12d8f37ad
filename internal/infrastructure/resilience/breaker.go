// Package resilience guards the ledger store with a circuit breaker so a
// failing backend trips fast instead of stalling every scope of a batch.
package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = shared.NewDomainError("STORE_UNAVAILABLE", "line item store circuit breaker is open")

// BreakerLineItemRepository runs every call to the wrapped store through a circuit breaker.
type BreakerLineItemRepository struct {
	next   pnl.LineItemRepository
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerLineItemRepository wraps next with a breaker configured from cfg
func NewBreakerLineItemRepository(next pnl.LineItemRepository, cfg config.ResilienceConfig, logger *zap.Logger) *BreakerLineItemRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        "pnl-line-items",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerLineItemRepository{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// isSuccessful keeps caller mistakes and cancellations from tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// State returns the breaker state
func (r *BreakerLineItemRepository) State() gobreaker.State {
	return r.cb.State()
}

// Check fails with ErrCircuitOpen while the breaker rejects calls.
func (r *BreakerLineItemRepository) Check(context.Context) error {
	if r.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("line item store: %w", ErrCircuitOpen)
	}
	return nil
}

// Counts returns the breaker counters of the current interval
func (r *BreakerLineItemRepository) Counts() gobreaker.Counts {
	return r.cb.Counts()
}

func (r *BreakerLineItemRepository) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := r.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.logger.Warn("Line item store call rejected", zap.String("operation", op), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	return result, err
}

// FindByScope reads a page through the breaker
func (r *BreakerLineItemRepository) FindByScope(ctx context.Context, scope pnl.Scope, page, pageSize int) ([]pnl.LineItem, error) {
	result, err := r.execute("find line items", func() (interface{}, error) {
		return r.next.FindByScope(ctx, scope, page, pageSize)
	})
	if err != nil {
		return nil, err
	}
	return result.([]pnl.LineItem), nil
}

// ListScopes lists scopes through the breaker
func (r *BreakerLineItemRepository) ListScopes(ctx context.Context, filter pnl.ScopeFilter) ([]pnl.Scope, error) {
	result, err := r.execute("list scopes", func() (interface{}, error) {
		return r.next.ListScopes(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return result.([]pnl.Scope), nil
}

// SaveBatch writes through the breaker
func (r *BreakerLineItemRepository) SaveBatch(ctx context.Context, items []pnl.LineItem) error {
	_, err := r.execute("save line items", func() (interface{}, error) {
		return nil, r.next.SaveBatch(ctx, items)
	})
	return err
}

var _ pnl.LineItemRepository = (*BreakerLineItemRepository)(nil)
