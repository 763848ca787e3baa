package restart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrServiceRestartFailed is returned when every restart strategy failed.
// The per-strategy failures are included in the message; callers treat this
// as a recoverable tick failure, not a fatal condition.
var ErrServiceRestartFailed = errors.New("service restart failed: all strategies exhausted")

// ErrNoStrategies is returned when the invoker was built with an empty chain.
var ErrNoStrategies = errors.New("no restart strategies configured")

// Invoker runs the restart fallback chain.
// Strategies are tried strictly in order; the first one that succeeds wins
// and the rest are never attempted.
type Invoker struct {
	// strategies is the ordered fallback chain.
	strategies []Strategy

	// timeout bounds each individual strategy attempt, so one hung
	// service-manager call cannot stall the whole chain.
	timeout time.Duration

	// settleDelay is how long to wait after a successful strategy before
	// returning, giving Tor time to build the new circuit. Probing
	// immediately after the signal almost always sees the old address.
	settleDelay time.Duration

	// logger records per-strategy outcomes at debug level.
	logger *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithStrategyTimeout bounds each strategy attempt.
func WithStrategyTimeout(timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.timeout = timeout
	}
}

// WithSettleDelay sets the post-restart settle delay.
// Tests set this to zero.
func WithSettleDelay(delay time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.settleDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// NewInvoker creates an Invoker over the given strategy chain.
func NewInvoker(strategies []Strategy, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		strategies:  strategies,
		timeout:     30 * time.Second,
		settleDelay: 2 * time.Second,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Restart triggers an identity change and returns the name of the strategy
// that succeeded. The daemon-side effect is not observable synchronously;
// callers confirm it by probing the external address afterwards.
//
// If every strategy fails, the returned error wraps ErrServiceRestartFailed
// with each strategy's failure reason.
func (i *Invoker) Restart(ctx context.Context) (string, error) {
	if len(i.strategies) == 0 {
		return "", ErrNoStrategies
	}

	var failures []string
	for _, s := range i.strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, i.timeout)
		err := s.Restart(attemptCtx)
		cancel()

		if err != nil {
			i.logger.Debug("restart strategy failed",
				"strategy", s.Name(),
				"error", err,
			)
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}

		i.logger.Debug("restart strategy succeeded", "strategy", s.Name())

		if i.settleDelay > 0 {
			select {
			case <-time.After(i.settleDelay):
			case <-ctx.Done():
				// The restart already happened; report success so the
				// caller still verifies it before shutting down.
			}
		}
		return s.Name(), nil
	}

	return "", fmt.Errorf("%w (%s)", ErrServiceRestartFailed, strings.Join(failures, "; "))
}
