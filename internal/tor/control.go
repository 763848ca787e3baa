package tor

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// ControlAuth describes how to authenticate against the Tor control port.
// At most one of Password or CookiePath is used; when both are empty the
// client attempts null authentication, which Tor accepts when no
// authentication method is configured.
type ControlAuth struct {
	// Password is the control-port password (HashedControlPassword setups).
	Password string

	// CookiePath is the path to Tor's control_auth_cookie file
	// (CookieAuthentication setups).
	CookiePath string
}

// ControlAuthFromCookie returns a ControlAuth that reads the given cookie file.
func ControlAuthFromCookie(path string) ControlAuth {
	return ControlAuth{CookiePath: path}
}

// ControlAuthFromPassword returns a ControlAuth using the given password.
func ControlAuthFromPassword(password string) ControlAuth {
	return ControlAuth{Password: password}
}

// ControlClient speaks the Tor control protocol for exactly one purpose:
// requesting a fresh identity with SIGNAL NEWNYM.
//
// Design decision: We implement the three control commands we need
// (AUTHENTICATE, SIGNAL NEWNYM, QUIT) over net/textproto ourselves rather
// than pulling in a full control-protocol library. The protocol is a
// line-oriented request/reply exchange, and owning it keeps the failure
// modes visible: every reply code is checked explicitly.
type ControlClient struct {
	// addr is the control port address in "host:port" format.
	addr string

	// auth describes the authentication method.
	auth ControlAuth

	// timeout bounds the whole NewIdentity exchange.
	timeout time.Duration
}

// NewControlClient creates a control client for the given address.
// The address format is validated; the connection is established lazily
// on each NewIdentity call so a restarted daemon never leaves the client
// holding a dead connection.
func NewControlClient(addr string, auth ControlAuth, timeout time.Duration) (*ControlClient, error) {
	if !isValidProxyAddress(addr) {
		return nil, ErrInvalidProxyAddress
	}
	return &ControlClient{addr: addr, auth: auth, timeout: timeout}, nil
}

// Addr returns the control port address.
func (c *ControlClient) Addr() string {
	return c.addr
}

// NewIdentity asks the Tor daemon to switch to clean circuits.
// It connects, authenticates, issues SIGNAL NEWNYM, and closes the
// connection. Tor rate-limits NEWNYM internally (roughly one per ten
// seconds); a rate-limited signal still returns 250 and simply takes
// effect later, which the address verification loop absorbs.
func (c *ControlClient) NewIdentity(ctx context.Context) error {
	var d net.Dialer
	dialCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := d.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to control port %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set control connection deadline: %w", err)
	}

	tc := textproto.NewConn(conn)
	defer tc.Close()

	authLine, err := c.authCommand()
	if err != nil {
		return err
	}
	if err := roundTrip(tc, authLine); err != nil {
		return fmt.Errorf("%w: %v", ErrControlAuthFailed, err)
	}

	if err := roundTrip(tc, "SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("%w: %v", ErrControlCommandFailed, err)
	}

	// Best effort; the daemon closes the connection either way.
	_ = tc.PrintfLine("QUIT") //nolint:errcheck // connection teardown follows regardless

	return nil
}

// authCommand builds the AUTHENTICATE line for the configured method.
func (c *ControlClient) authCommand() (string, error) {
	switch {
	case c.auth.Password != "":
		return fmt.Sprintf("AUTHENTICATE %s", quoteControlString(c.auth.Password)), nil
	case c.auth.CookiePath != "":
		cookie, err := os.ReadFile(c.auth.CookiePath)
		if err != nil {
			return "", fmt.Errorf("failed to read control auth cookie: %w", err)
		}
		return "AUTHENTICATE " + hex.EncodeToString(cookie), nil
	default:
		return "AUTHENTICATE", nil
	}
}

// quoteControlString quotes a value per the control protocol's QuotedString
// production: surrounding double quotes with backslash escapes inside.
func quoteControlString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// roundTrip sends one command and verifies the daemon replies 250.
// Control replies can span multiple lines ("250-..." continuations); we
// read until the final line, which uses a space after the status code.
func roundTrip(tc *textproto.Conn, command string) error {
	if err := tc.PrintfLine("%s", command); err != nil {
		return err
	}

	for {
		line, err := tc.ReadLine()
		if err != nil {
			return err
		}
		if len(line) < 3 {
			return fmt.Errorf("short control reply %q", line)
		}

		code := line[:3]
		if code != "250" {
			return fmt.Errorf("control reply %q", line)
		}

		// "250-" and "250+" mark continuation lines, "250 " (or bare
		// "250") marks the end of the reply.
		if len(line) == 3 || line[3] == ' ' {
			return nil
		}
	}
}
