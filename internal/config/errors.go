package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrInvalidPort is returned when a port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetryAttempts is returned when the retry count is below one.
	// At least one verification probe is required to classify a tick.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be at least 1")

	// ErrInvalidIntervalBounds is returned when the interval bounds are not
	// a valid, positive range.
	ErrInvalidIntervalBounds = errors.New("invalid interval bounds: min must be positive and not exceed max")

	// ErrNoCheckServices is returned when the address-check endpoint list is empty.
	// Without at least one endpoint the rotation outcome can never be verified.
	ErrNoCheckServices = errors.New("no address-check services configured")

	// ErrNoRestartStrategies is returned when the restart chain is empty.
	ErrNoRestartStrategies = errors.New("no restart strategies configured")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one report format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
