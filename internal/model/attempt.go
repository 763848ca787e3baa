package model

import "time"

// Outcome classifies the result of one rotation tick.
type Outcome int

const (
	// OutcomeChanged indicates a new address was observed that differs from
	// the address seen before the restart (or the old address was unknown).
	OutcomeChanged Outcome = iota

	// OutcomeUnchanged indicates the address was identical after exhausting
	// all verification retries. The restart had no visible effect.
	OutcomeUnchanged

	// OutcomeUnknown indicates the address could not be determined at all
	// after the restart.
	OutcomeUnknown

	// OutcomeRestartFailed indicates every restart strategy failed, so no
	// verification was attempted.
	OutcomeRestartFailed
)

// String returns a human-readable description of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeChanged:
		return "changed"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeRestartFailed:
		return "restart failed"
	default:
		return "invalid"
	}
}

// Success returns true if the tick counts as a successful identity change.
// Only OutcomeChanged is a success; everything else is a failure.
func (o Outcome) Success() bool {
	return o == OutcomeChanged
}

// AttemptResult is the transient record of one rotation tick.
// It is produced by the rotation controller, reported to the user, and
// optionally collected into a session report. It is never persisted.
type AttemptResult struct {
	// OldAddress is the address observed before the restart.
	// Zero if the before-probe failed.
	OldAddress ExitAddress `json:"old_address"`

	// NewAddress is the address observed after the restart.
	// Zero if no address could be determined.
	NewAddress ExitAddress `json:"new_address"`

	// Outcome classifies the tick.
	Outcome Outcome `json:"-"`

	// OutcomeText is the human-readable outcome, included for JSON output.
	OutcomeText string `json:"outcome"`

	// Strategy is the name of the restart strategy that succeeded.
	// Empty when the restart failed.
	Strategy string `json:"strategy,omitempty"`

	// Retries is the number of verification attempts performed after the restart.
	Retries int `json:"retries"`

	// Err holds a human-readable failure reason, empty on success.
	Err string `json:"error,omitempty"`

	// StartedAt is when the tick began.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the total tick duration, restart and verification included.
	Elapsed time.Duration `json:"elapsed"`
}

// NewAttemptResult creates an AttemptResult with the outcome text populated.
func NewAttemptResult(outcome Outcome) AttemptResult {
	return AttemptResult{
		Outcome:     outcome,
		OutcomeText: outcome.String(),
	}
}
