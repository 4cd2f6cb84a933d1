package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"rental-availability-backend/internal/domain"
)

// BreakerConfig configures the circuit breaker in front of the catalog.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Guarded turns every read failure of the wrapped Reader (and every call
// rejected by an open breaker) into domain.ErrCatalogUnavailable, so callers
// can tell "cannot determine status" apart from "busy" or "unknown".
type Guarded struct {
	next    Reader
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewGuarded wraps next with a circuit breaker.
func NewGuarded(next Reader, cfg BreakerConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// An unknown id is an answer, not an outage. A caller that went away
		// says nothing about the catalog either.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrResourceNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Guarded{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

func (g *Guarded) GetResource(ctx context.Context, id string) (domain.EquipmentResource, error) {
	v, err := g.breaker.Execute(func() (any, error) {
		return g.next.GetResource(ctx, id)
	})
	if err != nil {
		return domain.EquipmentResource{}, g.translate(err)
	}
	return v.(domain.EquipmentResource), nil
}

func (g *Guarded) ListSiblings(ctx context.Context, categoryID string) ([]domain.EquipmentResource, error) {
	v, err := g.breaker.Execute(func() (any, error) {
		return g.next.ListSiblings(ctx, categoryID)
	})
	if err != nil {
		return nil, g.translate(err)
	}
	return v.([]domain.EquipmentResource), nil
}

func (g *Guarded) translate(err error) error {
	switch {
	case errors.Is(err, domain.ErrResourceNotFound), errors.Is(err, domain.ErrCatalogUnavailable),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	default:
		g.logger.Warn("catalog read failed", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
}
