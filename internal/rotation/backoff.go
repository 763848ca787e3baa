package rotation

import "time"

// Backoff is the delay policy between post-restart verification probes.
// It starts at a base delay and doubles up to a cap.
//
// Design decision: The retry delay is an explicit policy object rather
// than arithmetic buried in the verification loop, so tests can assert
// the schedule and the controller can reset it per tick.
type Backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

// NewBackoff constructs a backoff policy. Non-positive base values are
// normalized to one second; a max below base is raised to base.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, cur: base}
}

// Next returns the delay to wait before the next probe and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

// Reset restores the policy to its initial delay.
func (b *Backoff) Reset() {
	b.cur = b.base
}
