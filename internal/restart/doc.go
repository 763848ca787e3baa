// Package restart implements the service-restart invoker: an ordered
// fallback chain of strategies that ask the Tor daemon to establish a new
// outbound identity, from service-manager reloads down to a control-port
// NEWNYM signal.
package restart
