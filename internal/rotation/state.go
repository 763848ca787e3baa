package rotation

import "github.com/zioerenkl/AnonymityEngine/internal/model"

// State is the rotation bookkeeping owned exclusively by the controller's
// loop. It is mutated only between ticks and returned by value from Run,
// so no caller ever observes a partially updated tick.
//
// Invariant: Successes+Failures never exceeds the configured count when
// the count is finite, and LastAddress is either zero (no successful probe
// yet) or a validated address.
type State struct {
	// LastAddress is the last known external address.
	LastAddress model.ExitAddress

	// Successes counts ticks classified as changed.
	Successes int

	// Failures counts ticks classified as unchanged, unknown, or
	// restart-failed.
	Failures int
}

// Ticks returns the total number of completed ticks.
func (s State) Ticks() int {
	return s.Successes + s.Failures
}
