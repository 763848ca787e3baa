package tor

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// startControlServer runs a scripted fake control port for one connection.
// It answers the AUTHENTICATE command with authReply lines and the next
// command with signalReply lines, recording every received command.
func startControlServer(t *testing.T, authReply, signalReply []string) (string, <-chan string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock control server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	received := make(chan string, 8)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tc := textproto.NewConn(conn)

		line, err := tc.ReadLine()
		if err != nil {
			return
		}
		received <- line
		for _, reply := range authReply {
			_ = tc.PrintfLine("%s", reply)
		}
		if len(authReply) > 0 && !strings.HasPrefix(authReply[len(authReply)-1], "250") {
			return
		}

		line, err = tc.ReadLine()
		if err != nil {
			return
		}
		received <- line
		for _, reply := range signalReply {
			_ = tc.PrintfLine("%s", reply)
		}

		// QUIT, best effort.
		if line, err := tc.ReadLine(); err == nil {
			received <- line
			_ = tc.PrintfLine("250 closing connection")
		}
	}()

	return listener.Addr().String(), received
}

func TestNewControlClient(t *testing.T) {
	t.Parallel()

	t.Run("valid address creates client", func(t *testing.T) {
		t.Parallel()

		client, err := NewControlClient("127.0.0.1:9051", ControlAuth{}, 5*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.Addr() != "127.0.0.1:9051" {
			t.Errorf("Addr() = %q, expected %q", client.Addr(), "127.0.0.1:9051")
		}
	})

	t.Run("invalid address returns error", func(t *testing.T) {
		t.Parallel()

		_, err := NewControlClient("not-an-address", ControlAuth{}, 5*time.Second)
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

func TestControlClient_NewIdentity(t *testing.T) {
	t.Parallel()

	t.Run("null authentication succeeds", func(t *testing.T) {
		t.Parallel()

		addr, received := startControlServer(t,
			[]string{"250 OK"},
			[]string{"250 OK"},
		)

		client, err := NewControlClient(addr, ControlAuth{}, 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := <-received; got != "AUTHENTICATE" {
			t.Errorf("expected bare AUTHENTICATE, got %q", got)
		}
		if got := <-received; got != "SIGNAL NEWNYM" {
			t.Errorf("expected SIGNAL NEWNYM, got %q", got)
		}
	})

	t.Run("password authentication quotes the password", func(t *testing.T) {
		t.Parallel()

		addr, received := startControlServer(t,
			[]string{"250 OK"},
			[]string{"250 OK"},
		)

		client, err := NewControlClient(addr, ControlAuthFromPassword(`pa"ss`), 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := <-received; got != `AUTHENTICATE "pa\"ss"` {
			t.Errorf("expected quoted password auth, got %q", got)
		}
	})

	t.Run("cookie authentication sends hex cookie", func(t *testing.T) {
		t.Parallel()

		cookiePath := filepath.Join(t.TempDir(), "control_auth_cookie")
		if err := os.WriteFile(cookiePath, []byte{0xde, 0xad, 0xbe, 0xef}, 0600); err != nil {
			t.Fatalf("failed to write cookie: %v", err)
		}

		addr, received := startControlServer(t,
			[]string{"250 OK"},
			[]string{"250 OK"},
		)

		client, err := NewControlClient(addr, ControlAuthFromCookie(cookiePath), 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := <-received; got != "AUTHENTICATE deadbeef" {
			t.Errorf("expected hex cookie auth, got %q", got)
		}
	})

	t.Run("rejected authentication returns ErrControlAuthFailed", func(t *testing.T) {
		t.Parallel()

		addr, _ := startControlServer(t,
			[]string{"515 Authentication failed"},
			nil,
		)

		client, err := NewControlClient(addr, ControlAuthFromPassword("wrong"), 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); !errors.Is(err, ErrControlAuthFailed) {
			t.Errorf("expected ErrControlAuthFailed, got %v", err)
		}
	})

	t.Run("rejected signal returns ErrControlCommandFailed", func(t *testing.T) {
		t.Parallel()

		addr, _ := startControlServer(t,
			[]string{"250 OK"},
			[]string{"552 Unrecognized signal"},
		)

		client, err := NewControlClient(addr, ControlAuth{}, 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); !errors.Is(err, ErrControlCommandFailed) {
			t.Errorf("expected ErrControlCommandFailed, got %v", err)
		}
	})

	t.Run("multi-line reply is consumed", func(t *testing.T) {
		t.Parallel()

		addr, _ := startControlServer(t,
			[]string{"250-PROTOCOLINFO extra", "250 OK"},
			[]string{"250 OK"},
		)

		client, err := NewControlClient(addr, ControlAuth{}, 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing cookie file fails", func(t *testing.T) {
		t.Parallel()

		addr, _ := startControlServer(t,
			[]string{"250 OK"},
			[]string{"250 OK"},
		)

		missing := filepath.Join(t.TempDir(), "no_such_cookie")
		client, err := NewControlClient(addr, ControlAuthFromCookie(missing), 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); err == nil {
			t.Error("expected error for missing cookie file")
		}
	})

	t.Run("unreachable control port fails", func(t *testing.T) {
		t.Parallel()

		client, err := NewControlClient("127.0.0.1:59997", ControlAuth{}, time.Second)
		if err != nil {
			t.Fatalf("failed to create control client: %v", err)
		}

		if err := client.NewIdentity(context.Background()); err == nil {
			t.Error("expected connection error")
		}
	})
}

func TestQuoteControlString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hunter2", want: `"hunter2"`},
		{name: "embedded quote", input: `pa"ss`, want: `"pa\"ss"`},
		{name: "embedded backslash", input: `pa\ss`, want: `"pa\\ss"`},
		{name: "empty", input: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := quoteControlString(tt.input); got != tt.want {
				t.Errorf("quoteControlString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
