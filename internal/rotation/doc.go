// Package rotation implements the rotation controller: a single
// cooperative loop that captures the current exit address, requests a
// daemon restart, verifies the address changed with bounded retries, and
// sleeps until the next tick.
//
// The controller owns all mutable rotation state. There is exactly one
// active rotation sequence at a time; a second concurrent Run is rejected.
// Cancellation is cooperative and observed at tick boundaries, between
// verification retries, and during every sleep.
package rotation
