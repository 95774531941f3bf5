package clients

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"casanexus/internal/postal"
)

// BreakerLookup guards a postal.Lookup with a circuit breaker. Unknown
// codes count as successes; only transport and server failures trip it.
type BreakerLookup struct {
	next postal.Lookup
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerLookup(next postal.Lookup, maxFailures uint32, openTimeout time.Duration, logger *slog.Logger) *BreakerLookup {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "postal",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, postal.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerLookup{next: next, cb: cb}
}

// Lookup returns gobreaker.ErrOpenState while the breaker is open.
func (b *BreakerLookup) Lookup(ctx context.Context, code string) (*postal.Address, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Lookup(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	return out.(*postal.Address), nil
}
