package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values match the behavior of a stock Tor daemon installation and
// are deliberately conservative about how often the identity can rotate.
const (
	// DefaultSocksPort is the standard Tor SOCKS5 proxy port.
	DefaultSocksPort = 9050

	// DefaultControlPort is the standard Tor control port.
	// Used by the NEWNYM restart strategy.
	DefaultControlPort = 9051

	// DefaultHost is where the local Tor daemon listens. We use 127.0.0.1
	// instead of localhost to avoid DNS resolution overhead and potential
	// issues with IPv6 resolution on some systems.
	DefaultHost = "127.0.0.1"

	// DefaultTimeout is the per-request timeout for address checks.
	// Tor adds multiple relay hops, so this is generous compared to a
	// clearnet request but short enough that a dead endpoint falls through
	// to the next check service quickly.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryAttempts is how many times the controller re-probes the
	// external address after a restart before declaring the tick unchanged.
	DefaultRetryAttempts = 3

	// DefaultMinInterval is the minimum allowed rotation interval.
	// Rotating faster than this puts needless load on the Tor network and
	// rarely yields a distinct circuit anyway.
	DefaultMinInterval = 10 * time.Second

	// DefaultMaxInterval is the maximum allowed rotation interval (one hour).
	DefaultMaxInterval = 3600 * time.Second

	// DefaultTorService is the service-manager unit name of the Tor daemon.
	DefaultTorService = "tor"

	// DefaultSettleDelay is how long to wait after a successful restart
	// before probing for the new address, giving Tor time to build a circuit.
	DefaultSettleDelay = 2 * time.Second

	// DefaultUserAgent identifies AnonymityEngine in address-check requests.
	DefaultUserAgent = "AnonymityEngine/2.0 (+https://github.com/zioerenkl/AnonymityEngine)"

	// DefaultMaxBodySize limits the response body read from a check service.
	// Address responses are tiny; anything beyond a few KB is garbage.
	DefaultMaxBodySize = 64 * 1024

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap when --embedded-tor is used.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultLogMaxSizeMB is the size at which the log file rotates.
	DefaultLogMaxSizeMB = 10

	// AppName is the application name used for XDG directory paths.
	AppName = "anonymityengine"
)

// DefaultCheckServices are the stock address-check endpoints, tried in order.
// All of them return the caller's address either as a bare string or as a
// small JSON object.
func DefaultCheckServices() []string {
	return []string{
		"http://checkip.amazonaws.com",
		"http://ipinfo.io/ip",
		"http://icanhazip.com",
		"http://httpbin.org/ip",
	}
}

// DefaultRestartStrategies is the stock restart fallback chain, tried in order.
func DefaultRestartStrategies() []string {
	return []string{"systemctl", "service", "signal", "newnym"}
}

// LoggingConfig holds the logging options recognized in the configuration file.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	// Invalid values fall back to warn with a logged warning.
	Level string

	// File is an optional log file path. When set, log output is written
	// both to stderr and to a size-rotated file.
	File string

	// MaxSizeMB is the size in megabytes at which the log file rotates.
	MaxSizeMB int
}

// Config holds all configuration options for AnonymityEngine.
// This struct is populated from defaults, then the optional config file,
// then CLI flags, and passed through the application via dependency
// injection rather than global state. It is read-only after startup.
//
// Design decision: We use a single flat struct instead of nested structs
// for everything except logging. The number of options is manageable, and
// nesting would add complexity without significant benefit.
type Config struct {
	// SocksPort is the local Tor SOCKS5 proxy port.
	SocksPort int

	// ControlPort is the local Tor control port used by the NEWNYM strategy.
	ControlPort int

	// Timeout is the per-request timeout for each address check and the
	// bound on each restart strategy attempt.
	Timeout time.Duration

	// RetryAttempts is the number of post-restart verification probes.
	RetryAttempts int

	// MinInterval and MaxInterval bound the rotation interval.
	// Values outside the range are clamped with a warning, never rejected.
	MinInterval time.Duration
	MaxInterval time.Duration

	// CheckServices is the ordered list of address-check endpoints.
	CheckServices []string

	// RestartStrategies is the ordered restart fallback chain.
	// Recognized names: systemctl, service, signal, newnym.
	RestartStrategies []string

	// TorService is the service-manager unit name of the Tor daemon.
	TorService string

	// UserAgent is sent with every address-check request.
	UserAgent string

	// ControlPassword authenticates the NEWNYM strategy against the control
	// port. Empty means cookie or null authentication.
	ControlPassword string

	// ControlCookiePath is the path to Tor's control_auth_cookie file.
	// Empty means the strategy falls back to null authentication.
	ControlCookiePath string

	// UseEmbeddedTor launches a private Tor daemon instead of expecting a
	// system daemon. Rotation then targets the embedded control port.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Logging holds the logging options.
	Logging LoggingConfig

	// Verbose enables debug-level log output.
	Verbose bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work with a stock
// Tor installation. Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because most defaults are non-zero (ports, timeouts, the
// check-service list). This also serves as documentation of the defaults.
func NewConfig() *Config {
	return &Config{
		SocksPort:         DefaultSocksPort,
		ControlPort:       DefaultControlPort,
		Timeout:           DefaultTimeout,
		RetryAttempts:     DefaultRetryAttempts,
		MinInterval:       DefaultMinInterval,
		MaxInterval:       DefaultMaxInterval,
		CheckServices:     DefaultCheckServices(),
		RestartStrategies: DefaultRestartStrategies(),
		TorService:        DefaultTorService,
		UserAgent:         DefaultUserAgent,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: DefaultLogMaxSizeMB,
		},
	}
}

// SocksAddr returns the SOCKS proxy address in "host:port" format.
func (c *Config) SocksAddr() string {
	return fmt.Sprintf("%s:%d", DefaultHost, c.SocksPort)
}

// ControlAddr returns the control port address in "host:port" format.
func (c *Config) ControlAddr() string {
	return fmt.Sprintf("%s:%d", DefaultHost, c.ControlPort)
}

// ClampInterval clamps v into [MinInterval, MaxInterval].
// It returns the clamped value and true when clamping occurred, so that
// the caller can log a warning. Clamping never fails; an out-of-range
// interval is a recoverable user mistake, not an error.
func (c *Config) ClampInterval(v time.Duration) (time.Duration, bool) {
	if v < c.MinInterval {
		return c.MinInterval, true
	}
	if v > c.MaxInterval {
		return c.MaxInterval, true
	}
	return v, false
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after flag and file merging, before any rotation
// begins. Only structurally broken values reach here; recoverable values
// were already replaced with defaults during merging.
func (c *Config) Validate() error {
	if c.SocksPort < 1 || c.SocksPort > 65535 {
		return ErrInvalidPort
	}
	if c.ControlPort < 1 || c.ControlPort > 65535 {
		return ErrInvalidPort
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetryAttempts < 1 {
		return ErrInvalidRetryAttempts
	}
	if c.MinInterval <= 0 || c.MaxInterval < c.MinInterval {
		return ErrInvalidIntervalBounds
	}
	if len(c.CheckServices) == 0 {
		return ErrNoCheckServices
	}
	if len(c.RestartStrategies) == 0 {
		return ErrNoRestartStrategies
	}
	return nil
}

// XDGConfigDir returns the XDG config directory for AnonymityEngine.
// On Linux: ~/.config/anonymityengine
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory for AnonymityEngine.
// Used as the default location for the rotating log file.
// On Linux: ~/.local/state/anonymityengine
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}
