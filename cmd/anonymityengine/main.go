// Package main provides the entry point for the AnonymityEngine CLI.
//
// AnonymityEngine rotates the public identity of a local Tor daemon on a
// schedule: it restarts (or signals) the daemon, then verifies through the
// SOCKS proxy that the externally visible exit address actually changed.
//
// Usage:
//
//	anonymityengine rotate
//	anonymityengine check
//
// See --help for all available options.
package main

// main is the entry point for AnonymityEngine.
func main() {
	Execute()
}
