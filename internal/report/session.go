package report

import (
	"time"

	"github.com/zioerenkl/AnonymityEngine/internal/model"
)

// Session is the full record of one rotation run, built incrementally by
// the command layer and rendered once the loop ends.
type Session struct {
	// StartedAt is when the rotation loop began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the loop ended, by count or by cancellation.
	FinishedAt time.Time `json:"finished_at"`

	// Interval is the configured sleep between ticks.
	Interval time.Duration `json:"interval"`

	// Requested is the configured rotation count; zero means unlimited.
	Requested int `json:"requested"`

	// Cancelled reports whether the run ended early on a signal.
	Cancelled bool `json:"cancelled"`

	// Attempts holds every completed tick in order.
	Attempts []model.AttemptResult `json:"attempts"`

	// Successes and Failures are the final tallies.
	Successes int `json:"successes"`
	Failures  int `json:"failures"`

	// FinalAddress is the last known external address, zero if none was
	// ever observed.
	FinalAddress model.ExitAddress `json:"final_address"`
}

// Duration returns the total wall-clock length of the session.
func (s *Session) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Record appends one attempt and updates the tallies.
func (s *Session) Record(result model.AttemptResult) {
	s.Attempts = append(s.Attempts, result)
	if result.Outcome.Success() {
		s.Successes++
	} else {
		s.Failures++
	}
}
