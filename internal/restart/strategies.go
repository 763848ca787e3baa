package restart

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Strategy is one way of triggering an identity change on the Tor daemon.
// Implementations must respect ctx for cancellation and deadlines.
//
// Design decision: Strategies are an ordered list of small polymorphic
// implementations rather than platform conditionals. Which mechanisms are
// available depends on how Tor was installed, not on the OS name, so the
// chain simply tries each one until something works.
type Strategy interface {
	// Name identifies the strategy in logs and attempt results.
	Name() string

	// Restart requests a new identity. A nil return means the request was
	// accepted; whether it had any effect is verified later by probing the
	// external address.
	Restart(ctx context.Context) error
}

// CommandRunner executes an external command. It exists so that strategy
// tests never shell out.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command, bounded by ctx. Output is discarded; only the
// exit status matters to the fallback chain.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// commandStrategy tries an ordered list of command variants until one
// succeeds. The variants exist because reloading a system service may
// require privilege escalation: we try the bare command first, then once
// more under non-interactive sudo.
type commandStrategy struct {
	name     string
	variants [][]string
	runner   CommandRunner
}

func (s *commandStrategy) Name() string {
	return s.name
}

func (s *commandStrategy) Restart(ctx context.Context) error {
	var errs []error
	for _, variant := range s.variants {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runner.Run(ctx, variant[0], variant[1:]...); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

// NewSystemctlStrategy reloads the Tor unit via systemctl.
// Reload (SIGHUP) is enough to rotate circuits and is far less disruptive
// than a full restart, which would drop the SOCKS listener mid-session.
func NewSystemctlStrategy(service string, runner CommandRunner) Strategy {
	return &commandStrategy{
		name: "systemctl",
		variants: [][]string{
			{"systemctl", "reload", service},
			{"sudo", "-n", "systemctl", "reload", service},
		},
		runner: runner,
	}
}

// NewServiceCommandStrategy reloads Tor via the legacy service(8) wrapper,
// for init systems where systemctl is unavailable.
func NewServiceCommandStrategy(service string, runner CommandRunner) Strategy {
	return &commandStrategy{
		name: "service",
		variants: [][]string{
			{"service", service, "reload"},
			{"sudo", "-n", "service", service, "reload"},
		},
		runner: runner,
	}
}

// NewSignalStrategy sends SIGHUP directly to the tor process.
// This is the last resort for daemons running outside any service manager.
func NewSignalStrategy(process string, runner CommandRunner) Strategy {
	return &commandStrategy{
		name: "signal",
		variants: [][]string{
			{"pkill", "-HUP", "-x", process},
			{"sudo", "-n", "pkill", "-HUP", "-x", process},
		},
		runner: runner,
	}
}

// IdentitySignaler issues a control-protocol new-identity request.
// Satisfied by tor.ControlClient.
type IdentitySignaler interface {
	NewIdentity(ctx context.Context) error
}

// newNymStrategy requests a new identity over the Tor control port.
type newNymStrategy struct {
	signaler IdentitySignaler
}

// NewNewNymStrategy creates the control-port strategy.
// Unlike the command strategies it needs no privileges at all, only
// control-port credentials, which makes it the preferred mechanism when
// the control port is reachable.
func NewNewNymStrategy(signaler IdentitySignaler) Strategy {
	return &newNymStrategy{signaler: signaler}
}

func (s *newNymStrategy) Name() string {
	return "newnym"
}

func (s *newNymStrategy) Restart(ctx context.Context) error {
	return s.signaler.NewIdentity(ctx)
}
