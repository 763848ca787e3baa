package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout is the timeout for checking if the Tor proxy is available.
// We use a short timeout here because this is just a connectivity check,
// not an actual request through Tor.
const checkProxyTimeout = 2 * time.Second

// Client provides Tor network connectivity.
// It wraps a SOCKS5 dialer and builds HTTP clients whose requests are
// routed through the local Tor daemon.
//
// Design decision: We only use plain SOCKS5 connectivity here, which is
// standard Go functionality via golang.org/x/net/proxy. Daemon lifecycle
// management lives in EmbeddedTor; identity changes live in ControlClient.
type Client struct {
	// proxyAddress is the Tor SOCKS5 proxy address in "host:port" format.
	proxyAddress string

	// dialer is the SOCKS5 dialer for Tor connections.
	// Cached to avoid recreating it for each connection.
	dialer proxy.Dialer

	// timeout is the default timeout for HTTP clients created by this client.
	timeout time.Duration
}

// NewClient creates a new Tor client with the given proxy address and timeout.
//
// The proxyAddress must be in "host:port" format (e.g., "127.0.0.1:9050").
//
// This function validates the proxy address format but does not verify
// that the proxy is actually running. Call CheckConnection() to verify.
//
// Design decision: We don't connect to the proxy in the constructor because
// it allows creating the client before Tor is up and makes testing with
// mock proxies straightforward.
func NewClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// nil auth: Tor's SOCKS port does not require authentication by default.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format
// with a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// SOCKS5 protocol constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect   = 0x01
	socks5AddrTypeDom  = 0x03

	// socks5TestHost is a synthetic hostname used for SOCKS5 verification.
	// The .invalid TLD guarantees the name never resolves; we only need the
	// proxy to respond to the CONNECT request, not for it to succeed.
	socks5TestHost = "connectivity-check.invalid"
)

// CheckConnection verifies that the Tor proxy is running and accessible.
// It returns a ProxyStatus indicating the result of the check.
//
// The check performs a SOCKS5 protocol handshake to verify:
// 1. The proxy speaks SOCKS5 protocol
// 2. The proxy accepts connections without authentication
// 3. The proxy processes CONNECT requests
//
// Security note: This is more robust than checking HTTP response strings,
// as a non-SOCKS service cannot easily mimic proper SOCKS5 behavior.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Version negotiation: offer "no authentication" only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if authResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	if authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	// CONNECT to a synthetic host. Any SOCKS5 reply, success or failure,
	// proves the proxy is actually proxying.
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00, // reserved
		socks5AddrTypeDom,
		byte(len(socks5TestHost)),
	}
	connectReq = append(connectReq, []byte(socks5TestHost)...)
	connectReq = append(connectReq, 0x00, 0x50) // port 80

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// NewHTTPClient creates an HTTP client that routes all requests through
// the Tor SOCKS5 proxy.
//
// Design decisions:
//   - Connection pool is kept small because each connection consumes a Tor
//     circuit, which is a limited resource.
//   - Compression is disabled; address-check responses are a few bytes and
//     compressed response sizes are a known anonymity side channel.
//   - Redirects are capped at 3. Check services answer directly; long
//     redirect chains indicate a captive portal or a broken endpoint.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			return c.dialer.Dial(network, addr)
		},
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Dialer returns the underlying proxy dialer.
func (c *Client) Dialer() proxy.Dialer {
	return c.dialer
}
