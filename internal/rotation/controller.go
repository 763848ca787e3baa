package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zioerenkl/AnonymityEngine/internal/model"
)

// ErrAlreadyRunning is returned when Run is called while another rotation
// sequence is still active on the same controller.
var ErrAlreadyRunning = errors.New("rotation sequence already running")

// AddressChecker probes the externally visible address.
// Satisfied by ipcheck.Checker.
type AddressChecker interface {
	FetchAddress(ctx context.Context) (model.ExitAddress, error)
}

// Restarter triggers an identity change and reports which mechanism did it.
// Satisfied by restart.Invoker.
type Restarter interface {
	Restart(ctx context.Context) (string, error)
}

// Controller runs the rotation loop. Construct it with NewController and
// drive it with Run; a controller is reusable but never runs two sequences
// concurrently.
type Controller struct {
	checker   AddressChecker
	restarter Restarter

	// interval is the sleep between ticks. Callers clamp it to the
	// configured bounds before constructing the controller.
	interval time.Duration

	// count is the number of rotations to perform; zero means run until
	// the context is cancelled.
	count int

	// retryAttempts bounds the post-restart verification probes per tick.
	retryAttempts int

	// backoffBase and backoffMax parameterize the per-tick retry schedule.
	backoffBase time.Duration
	backoffMax  time.Duration

	// onAttempt, when set, receives every completed tick's result before
	// the next sleep begins.
	onAttempt func(model.AttemptResult)

	logger *slog.Logger

	// running guards against concurrent Run calls.
	running atomic.Bool

	state State
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithInterval sets the sleep between ticks.
func WithInterval(interval time.Duration) ControllerOption {
	return func(c *Controller) {
		c.interval = interval
	}
}

// WithCount sets how many rotations to perform. Zero means unlimited.
func WithCount(count int) ControllerOption {
	return func(c *Controller) {
		c.count = count
	}
}

// WithRetryAttempts sets the number of post-restart verification probes.
func WithRetryAttempts(attempts int) ControllerOption {
	return func(c *Controller) {
		c.retryAttempts = attempts
	}
}

// WithVerifyBackoff sets the retry delay schedule used between
// verification probes. Tests set both to zero-ish values to stay fast.
func WithVerifyBackoff(base, max time.Duration) ControllerOption {
	return func(c *Controller) {
		c.backoffBase = base
		c.backoffMax = max
	}
}

// WithOnAttempt registers a callback invoked after every completed tick.
// The callback runs on the loop goroutine; it must not block for long.
func WithOnAttempt(fn func(model.AttemptResult)) ControllerOption {
	return func(c *Controller) {
		c.onAttempt = fn
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a rotation controller over the given checker and
// restarter.
func NewController(checker AddressChecker, restarter Restarter, opts ...ControllerOption) *Controller {
	c := &Controller{
		checker:       checker,
		restarter:     restarter,
		interval:      60 * time.Second,
		count:         0,
		retryAttempts: 3,
		backoffBase:   2 * time.Second,
		backoffMax:    15 * time.Second,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run executes the rotation loop until the configured count is reached or
// ctx is cancelled. It returns the final state either way; on cancellation
// the error is ctx's error, and the state reflects only fully completed
// ticks.
//
// A second Run while one is active fails immediately with ErrAlreadyRunning
// and does not touch the running sequence's state.
func (c *Controller) Run(ctx context.Context) (State, error) {
	if !c.running.CompareAndSwap(false, true) {
		return State{}, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.state = State{}

	for i := 0; c.count == 0 || i < c.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return c.state, ctx.Err()
			case <-time.After(c.interval):
			}
		}

		if err := ctx.Err(); err != nil {
			return c.state, err
		}

		result := c.tick(ctx)
		c.record(result)

		if c.onAttempt != nil {
			c.onAttempt(result)
		}

		if err := ctx.Err(); err != nil {
			return c.state, err
		}
	}

	return c.state, nil
}

// record folds a completed tick into the state. The state is updated in one
// step after the tick finishes, never during it.
func (c *Controller) record(result model.AttemptResult) {
	if result.Outcome.Success() {
		c.state.Successes++
		c.state.LastAddress = result.NewAddress
		return
	}

	c.state.Failures++

	// A tick can fail to rotate yet still tell us where we are.
	if !result.NewAddress.IsZero() {
		c.state.LastAddress = result.NewAddress
	} else if c.state.LastAddress.IsZero() && !result.OldAddress.IsZero() {
		c.state.LastAddress = result.OldAddress
	}
}

// tick performs one full rotation attempt: before-probe, restart, and
// verification. It always returns a classified result and never lets a
// panic escape into the loop; a panicking dependency costs one failed tick,
// not the whole sequence.
func (c *Controller) tick(ctx context.Context) (result model.AttemptResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("rotation tick panicked", "panic", r)
			result = model.NewAttemptResult(model.OutcomeUnknown)
			result.StartedAt = start
			result.Elapsed = time.Since(start)
			result.Err = fmt.Sprintf("internal fault: %v", r)
		}
	}()

	result = model.NewAttemptResult(model.OutcomeUnknown)
	result.StartedAt = start

	// Before-probe is best effort. An unknown old address does not block
	// the rotation; it only loosens the verification below.
	oldAddr, err := c.checker.FetchAddress(ctx)
	if err != nil {
		c.logger.Debug("before-probe failed, proceeding with unknown old address", "error", err)
	} else {
		result.OldAddress = oldAddr
		c.logger.Debug("current address captured", "address", oldAddr)
	}

	strategy, err := c.restarter.Restart(ctx)
	if err != nil {
		result.Outcome = model.OutcomeRestartFailed
		result.OutcomeText = result.Outcome.String()
		result.Err = err.Error()
		result.Elapsed = time.Since(start)
		return result
	}
	result.Strategy = strategy

	c.verify(ctx, &result, oldAddr)
	result.Elapsed = time.Since(start)
	return result
}

// verify probes the address after a restart until it differs from oldAddr
// or the retry budget runs out, and classifies the outcome into result.
//
// When the old address is unknown, any validated address counts as changed:
// we cannot prove rotation, but we also have no evidence against it, and
// penalizing the tick would make a flaky check service look like a broken
// Tor daemon.
func (c *Controller) verify(ctx context.Context, result *model.AttemptResult, oldAddr model.ExitAddress) {
	backoff := NewBackoff(c.backoffBase, c.backoffMax)
	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Retries = attempt

		addr, err := c.checker.FetchAddress(ctx)
		if err != nil {
			lastErr = err
			c.logger.Debug("verification probe failed",
				"attempt", attempt,
				"error", err,
			)
		} else {
			result.NewAddress = addr
			if oldAddr.IsZero() || !addr.Equals(oldAddr) {
				result.Outcome = model.OutcomeChanged
				result.OutcomeText = result.Outcome.String()
				return
			}
			c.logger.Debug("address unchanged, retrying",
				"attempt", attempt,
				"address", addr,
			)
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			// Cancelled mid-verification: classify with what we have.
			attempt = attempts
		case <-time.After(backoff.Next()):
		}
	}

	if result.NewAddress.IsZero() {
		result.Outcome = model.OutcomeUnknown
		if lastErr != nil {
			result.Err = lastErr.Error()
		} else {
			result.Err = "address could not be determined after restart"
		}
	} else {
		result.Outcome = model.OutcomeUnchanged
		result.Err = "address did not change after restart"
	}
	result.OutcomeText = result.Outcome.String()
}
