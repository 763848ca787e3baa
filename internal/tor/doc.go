// Package tor provides connectivity to the local Tor daemon: a SOCKS5
// client for routing address checks through Tor, a minimal control-port
// client for requesting a new identity, and an embedded daemon manager
// for running without a system Tor installation.
package tor
