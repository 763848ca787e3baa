package ipcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zioerenkl/AnonymityEngine/internal/model"
)

// ErrAddressUnavailable is returned when every configured check service
// failed to produce a valid address. The last underlying error is wrapped
// so callers can still see why.
var ErrAddressUnavailable = errors.New("external address unavailable: all check services failed")

// defaultMaxBodySize limits the response body read from a check service.
// Address responses are a handful of bytes; anything larger is garbage.
const defaultMaxBodySize = 64 * 1024

// Checker fetches the externally visible address through the Tor proxy.
// It tries a configured list of check services in order and returns the
// first response that validates as an IP address.
//
// Design decision: We require an external *http.Client rather than creating
// one internally because the Tor proxy wiring is handled by the tor package,
// and tests can substitute an httptest server's client.
type Checker struct {
	// client is the HTTP client, pre-configured for the Tor SOCKS5 proxy.
	client *http.Client

	// endpoints is the ordered list of check-service URLs.
	endpoints []string

	// userAgent is sent with every request so that check-service operators
	// can identify the traffic.
	userAgent string

	// timeout bounds each individual endpoint attempt.
	timeout time.Duration

	// maxBodySize limits the response body read.
	maxBodySize int64
}

// Option configures a Checker.
type Option func(*Checker)

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Checker) {
		c.userAgent = ua
	}
}

// WithTimeout sets the per-endpoint timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		c.timeout = timeout
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) Option {
	return func(c *Checker) {
		c.maxBodySize = size
	}
}

// NewChecker creates a Checker that queries the given endpoints in order.
func NewChecker(client *http.Client, endpoints []string, opts ...Option) *Checker {
	c := &Checker{
		client:      client,
		endpoints:   endpoints,
		userAgent:   "AnonymityEngine/2.0",
		timeout:     30 * time.Second,
		maxBodySize: defaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchAddress returns the current externally visible address.
//
// Endpoints are tried strictly in order; each attempt gets its own timeout
// so one dead service cannot eat the whole budget. The first syntactically
// valid address wins. If every endpoint fails, the error wraps
// ErrAddressUnavailable together with the last underlying failure.
//
// FetchAddress mutates no state and is safe to call repeatedly; with a
// stable circuit it keeps returning the same address.
func (c *Checker) FetchAddress(ctx context.Context) (model.ExitAddress, error) {
	var lastErr error

	for _, endpoint := range c.endpoints {
		select {
		case <-ctx.Done():
			return model.ExitAddress{}, ctx.Err()
		default:
		}

		addr, err := c.fetchFrom(ctx, endpoint)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", endpoint, err)
			continue
		}
		return addr, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no check services configured")
	}
	return model.ExitAddress{}, fmt.Errorf("%w (last error: %v)", ErrAddressUnavailable, lastErr)
}

// fetchFrom queries one endpoint and parses the response.
func (c *Checker) fetchFrom(ctx context.Context, endpoint string) (model.ExitAddress, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.ExitAddress{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return model.ExitAddress{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ExitAddress{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return model.ExitAddress{}, err
	}

	return ParseAddressResponse(string(body))
}

// jsonAddressFields are the JSON keys check services use for the caller's
// address, in the order we try them. httpbin uses "origin", ipinfo uses
// "ip", ip-api uses "query".
var jsonAddressFields = []string{"origin", "ip", "address", "query"}

// ParseAddressResponse extracts an address from a check-service response body.
// It accepts either a bare address string or a JSON object with a known
// address field. Parsing is deliberately permissive about whitespace and
// comma-separated origin lists; validation of the extracted value is not.
func ParseAddressResponse(body string) (model.ExitAddress, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return model.ExitAddress{}, model.ErrEmptyExitAddress
	}

	if strings.HasPrefix(trimmed, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return model.ExitAddress{}, fmt.Errorf("malformed JSON response: %w", err)
		}

		for _, field := range jsonAddressFields {
			raw, ok := payload[field].(string)
			if !ok || raw == "" {
				continue
			}
			// httpbin's "origin" can be "client, proxy"; the first entry
			// is the address we want.
			first, _, _ := strings.Cut(raw, ",")
			return model.NewExitAddress(first)
		}
		return model.ExitAddress{}, errors.New("JSON response has no address field")
	}

	return model.NewExitAddress(trimmed)
}
