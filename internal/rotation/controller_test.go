package rotation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zioerenkl/AnonymityEngine/internal/model"
)

// scriptedChecker returns the scripted addresses in order, repeating the
// last entry once the script runs out. An empty string means a probe error.
type scriptedChecker struct {
	mu    sync.Mutex
	addrs []string
	calls int
}

func (c *scriptedChecker) FetchAddress(ctx context.Context) (model.ExitAddress, error) {
	if err := ctx.Err(); err != nil {
		return model.ExitAddress{}, err
	}

	c.mu.Lock()
	i := c.calls
	c.calls++
	c.mu.Unlock()

	if len(c.addrs) == 0 {
		return model.ExitAddress{}, errors.New("no script")
	}
	if i >= len(c.addrs) {
		i = len(c.addrs) - 1
	}
	if c.addrs[i] == "" {
		return model.ExitAddress{}, errors.New("probe failed")
	}
	return model.MustNewExitAddress(c.addrs[i]), nil
}

func (c *scriptedChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// scriptedRestarter succeeds or fails unconditionally.
type scriptedRestarter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (r *scriptedRestarter) Restart(context.Context) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	return "newnym", nil
}

// panickyChecker simulates a broken dependency.
type panickyChecker struct{}

func (panickyChecker) FetchAddress(context.Context) (model.ExitAddress, error) {
	panic("checker exploded")
}

// newTestController builds a controller with delays short enough for tests.
func newTestController(checker AddressChecker, restarter Restarter, opts ...ControllerOption) *Controller {
	base := []ControllerOption{
		WithInterval(time.Millisecond),
		WithRetryAttempts(3),
		WithVerifyBackoff(time.Millisecond, time.Millisecond),
	}
	return NewController(checker, restarter, append(base, opts...)...)
}

func TestController_Run(t *testing.T) {
	t.Parallel()

	t.Run("changed address counts as success", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{"10.0.0.1", "10.0.0.2"}}
		restarter := &scriptedRestarter{}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(1),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if state.Successes != 1 || state.Failures != 0 {
			t.Errorf("expected 1 success, got %d/%d", state.Successes, state.Failures)
		}
		if state.LastAddress.String() != "10.0.0.2" {
			t.Errorf("expected last address 10.0.0.2, got %s", state.LastAddress)
		}

		if len(results) != 1 {
			t.Fatalf("expected 1 attempt result, got %d", len(results))
		}
		r := results[0]
		if r.Outcome != model.OutcomeChanged {
			t.Errorf("expected changed outcome, got %v", r.Outcome)
		}
		if r.OldAddress.String() != "10.0.0.1" || r.NewAddress.String() != "10.0.0.2" {
			t.Errorf("expected 10.0.0.1 -> 10.0.0.2, got %s -> %s", r.OldAddress, r.NewAddress)
		}
		if r.Strategy != "newnym" {
			t.Errorf("expected winning strategy recorded, got %q", r.Strategy)
		}
		if r.Retries != 1 {
			t.Errorf("expected 1 verification probe, got %d", r.Retries)
		}
	})

	t.Run("stable address exhausts retries and fails", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{"10.0.0.1"}}
		restarter := &scriptedRestarter{}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(1),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if state.Successes != 0 || state.Failures != 1 {
			t.Errorf("expected 1 failure, got %d/%d", state.Successes, state.Failures)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 attempt result, got %d", len(results))
		}
		if results[0].Outcome != model.OutcomeUnchanged {
			t.Errorf("expected unchanged outcome, got %v", results[0].Outcome)
		}
		if results[0].Retries != 3 {
			t.Errorf("expected all 3 probes used, got %d", results[0].Retries)
		}
		// One before-probe plus three verification probes.
		if got := checker.callCount(); got != 4 {
			t.Errorf("expected 4 probes total, got %d", got)
		}
	})

	t.Run("address changing on the last retry still succeeds", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{"10.0.0.1", "10.0.0.1", "10.0.0.1", "10.0.0.2"}}
		restarter := &scriptedRestarter{}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(1),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Successes != 1 {
			t.Errorf("expected success, got %d/%d", state.Successes, state.Failures)
		}
		if results[0].Retries != 3 {
			t.Errorf("expected 3 probes, got %d", results[0].Retries)
		}
	})

	t.Run("restart failure skips verification", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{"10.0.0.1"}}
		restarter := &scriptedRestarter{err: errors.New("all strategies exhausted")}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(1),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Failures != 1 {
			t.Errorf("expected 1 failure, got %d", state.Failures)
		}
		if results[0].Outcome != model.OutcomeRestartFailed {
			t.Errorf("expected restart-failed outcome, got %v", results[0].Outcome)
		}
		if results[0].Err == "" {
			t.Error("expected failure reason to be recorded")
		}
		// Only the before-probe ran; no verification after a failed restart.
		if got := checker.callCount(); got != 1 {
			t.Errorf("expected 1 probe, got %d", got)
		}
	})

	t.Run("all probes failing yields unknown outcome", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{""}}
		restarter := &scriptedRestarter{}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(1),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Failures != 1 {
			t.Errorf("expected 1 failure, got %d", state.Failures)
		}
		if results[0].Outcome != model.OutcomeUnknown {
			t.Errorf("expected unknown outcome, got %v", results[0].Outcome)
		}
		if results[0].Err == "" {
			t.Error("expected probe error to be recorded")
		}
		if !state.LastAddress.IsZero() {
			t.Errorf("expected no last address, got %s", state.LastAddress)
		}
	})

	t.Run("unknown old address classifies any new address as changed", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{"", "10.0.0.1"}}
		restarter := &scriptedRestarter{}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(1),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Successes != 1 {
			t.Errorf("expected success with unknown old address, got %d/%d",
				state.Successes, state.Failures)
		}
		if !results[0].OldAddress.IsZero() {
			t.Errorf("expected zero old address, got %s", results[0].OldAddress)
		}
		if results[0].NewAddress.String() != "10.0.0.1" {
			t.Errorf("expected new address recorded, got %s", results[0].NewAddress)
		}
	})

	t.Run("finite count performs exactly that many ticks", func(t *testing.T) {
		t.Parallel()

		// Every verification probe sees a fresh address.
		checker := &scriptedChecker{addrs: []string{
			"10.0.0.1", "10.0.0.2", // tick 1
			"10.0.0.2", "10.0.0.3", // tick 2
			"10.0.0.3", "10.0.0.4", // tick 3
		}}
		restarter := &scriptedRestarter{}

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(3),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(results) != 3 {
			t.Fatalf("expected exactly 3 attempts, got %d", len(results))
		}
		if state.Successes != 3 || state.Failures != 0 {
			t.Errorf("expected 3 successes, got %d/%d", state.Successes, state.Failures)
		}
		if state.Ticks() != 3 {
			t.Errorf("expected 3 ticks, got %d", state.Ticks())
		}
		if state.LastAddress.String() != "10.0.0.4" {
			t.Errorf("expected last address 10.0.0.4, got %s", state.LastAddress)
		}
	})

	t.Run("unlimited run stops on cancellation with completed ticks only", func(t *testing.T) {
		t.Parallel()

		checker := &scriptedChecker{addrs: []string{"10.0.0.1", "10.0.0.2"}}
		restarter := &scriptedRestarter{}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var results []model.AttemptResult
		c := newTestController(checker, restarter,
			WithCount(0),
			WithInterval(time.Hour), // cancellation must interrupt the sleep
			WithOnAttempt(func(r model.AttemptResult) {
				results = append(results, r)
				cancel()
			}),
		)

		done := make(chan struct{})
		var state State
		var err error
		go func() {
			state, err = c.Run(ctx)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(results) != 1 {
			t.Errorf("expected exactly 1 completed tick, got %d", len(results))
		}
		if state.Ticks() != 1 {
			t.Errorf("expected state to reflect 1 completed tick, got %d", state.Ticks())
		}
	})

	t.Run("panicking dependency costs one tick, not the run", func(t *testing.T) {
		t.Parallel()

		var results []model.AttemptResult
		c := newTestController(panickyChecker{}, &scriptedRestarter{},
			WithCount(2),
			WithOnAttempt(func(r model.AttemptResult) { results = append(results, r) }),
		)

		state, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected both ticks recorded, got %d", len(results))
		}
		if state.Failures != 2 {
			t.Errorf("expected 2 failures, got %d", state.Failures)
		}
		for _, r := range results {
			if r.Outcome != model.OutcomeUnknown {
				t.Errorf("expected unknown outcome for panicked tick, got %v", r.Outcome)
			}
			if r.Err == "" {
				t.Error("expected panic to be recorded as the failure reason")
			}
		}
	})
}

// gatedChecker blocks in FetchAddress until released.
type gatedChecker struct {
	entered chan struct{}
	release chan struct{}
}

func (c *gatedChecker) FetchAddress(context.Context) (model.ExitAddress, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.release
	return model.MustNewExitAddress("10.0.0.1"), nil
}

func TestController_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	checker := &gatedChecker{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTestController(checker, &scriptedRestarter{}, WithCount(1))

	done := make(chan struct{})
	go func() {
		_, _ = c.Run(context.Background())
		close(done)
	}()

	// Wait until the first Run is inside a tick, then try again.
	select {
	case <-checker.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first Run never started a tick")
	}

	if _, err := c.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(checker.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first Run never finished")
	}

	// Once the first run finishes, the same controller is reusable.
	if _, err := c.Run(context.Background()); err != nil {
		t.Errorf("expected finished controller to accept a new run, got %v", err)
	}
}
