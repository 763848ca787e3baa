package model

import (
	"errors"
	"net/netip"
	"strings"
)

// ExitAddress errors.
var (
	// ErrInvalidExitAddress is returned when the address is not a valid IP address.
	ErrInvalidExitAddress = errors.New("invalid exit address format")
	// ErrEmptyExitAddress is returned when the address is empty.
	ErrEmptyExitAddress = errors.New("exit address cannot be empty")
)

// ExitAddress is an immutable value object representing the externally visible
// address of the current Tor circuit, as reported by an address-check service.
//
// Design decision: We wrap netip.Addr rather than storing a raw string because
// it gives us canonical formatting for free. Two responses like "1.2.3.4" and
// "1.2.3.4 " (trailing whitespace) must compare equal, and the comparison is
// what rotation correctness rests on.
type ExitAddress struct {
	addr netip.Addr
}

// NewExitAddress creates a new ExitAddress from a string.
// The input is trimmed and validated as an IPv4 or IPv6 address.
// Returns an error if the address is empty or malformed.
func NewExitAddress(address string) (ExitAddress, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return ExitAddress{}, ErrEmptyExitAddress
	}

	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return ExitAddress{}, ErrInvalidExitAddress
	}

	return ExitAddress{addr: addr}, nil
}

// MustNewExitAddress creates a new ExitAddress or panics if invalid.
// Use only for known-valid addresses in tests or initialization.
func MustNewExitAddress(address string) ExitAddress {
	ea, err := NewExitAddress(address)
	if err != nil {
		panic(err)
	}
	return ea
}

// String returns the canonical string form of the address.
// Returns an empty string for the zero value.
func (e ExitAddress) String() string {
	if e.IsZero() {
		return ""
	}
	return e.addr.String()
}

// IsZero returns true if this is a zero value (unknown) ExitAddress.
func (e ExitAddress) IsZero() bool {
	return !e.addr.IsValid()
}

// Equals returns true if two ExitAddress values represent the same address.
// Two zero values are considered equal.
func (e ExitAddress) Equals(other ExitAddress) bool {
	return e.addr == other.addr
}

// Is4 returns true if this is an IPv4 address.
func (e ExitAddress) Is4() bool {
	return e.addr.Is4()
}

// Is6 returns true if this is an IPv6 address (and not an IPv4-mapped one).
func (e ExitAddress) Is6() bool {
	return e.addr.Is6() && !e.addr.Is4In6()
}

// MarshalText implements encoding.TextMarshaler so that ExitAddress values
// serialize cleanly in JSON reports. The zero value marshals to an empty string.
func (e ExitAddress) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// An empty input produces the zero value rather than an error so that
// reports with an unknown old address round-trip.
func (e *ExitAddress) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*e = ExitAddress{}
		return nil
	}
	ea, err := NewExitAddress(string(text))
	if err != nil {
		return err
	}
	*e = ea
	return nil
}
