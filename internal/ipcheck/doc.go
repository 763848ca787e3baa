// Package ipcheck implements the address-check client: it asks external
// check services, through the Tor proxy, what address the outside world
// currently sees for this machine.
package ipcheck
