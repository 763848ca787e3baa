package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/zioerenkl/AnonymityEngine/internal/config"
	"github.com/zioerenkl/AnonymityEngine/internal/model"
	"github.com/zioerenkl/AnonymityEngine/internal/report"
	"github.com/zioerenkl/AnonymityEngine/internal/rotation"
)

// newRotateCmdWithFlags builds the rotate command with the given flags parsed.
func newRotateCmdWithFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := NewRotateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd
}

func TestBuildRotateConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults without flags", func(t *testing.T) {
		t.Parallel()

		cmd := newRotateCmdWithFlags(t)
		cfg, warnings, err := buildRotateConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(warnings) != 0 {
			t.Errorf("expected no warnings, got %v", warnings)
		}
		if cfg.SocksPort != config.DefaultSocksPort {
			t.Errorf("expected default socks port, got %d", cfg.SocksPort)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		cmd := newRotateCmdWithFlags(t,
			"--socks-port", "9150",
			"--control-port", "9151",
			"--timeout", "45s",
			"--retries", "5",
		)

		cfg, _, err := buildRotateConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.SocksPort != 9150 || cfg.ControlPort != 9151 {
			t.Errorf("expected port overrides, got %d/%d", cfg.SocksPort, cfg.ControlPort)
		}
		if cfg.Timeout != 45*time.Second {
			t.Errorf("expected 45s timeout, got %s", cfg.Timeout)
		}
		if cfg.RetryAttempts != 5 {
			t.Errorf("expected 5 retries, got %d", cfg.RetryAttempts)
		}
	})

	t.Run("config file values are merged", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".anonymityengine")
		content := "socks_port: 9150\ntor_service: tor@rotate\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := newRotateCmdWithFlags(t, "-c", path)
		cfg, _, err := buildRotateConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.SocksPort != 9150 {
			t.Errorf("expected socks port from file, got %d", cfg.SocksPort)
		}
		if cfg.TorService != "tor@rotate" {
			t.Errorf("expected tor service from file, got %q", cfg.TorService)
		}
	})

	t.Run("flags beat the config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".anonymityengine")
		if err := os.WriteFile(path, []byte("socks_port: 9150\n"), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := newRotateCmdWithFlags(t, "-c", path, "--socks-port", "9999")
		cfg, _, err := buildRotateConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.SocksPort != 9999 {
			t.Errorf("expected flag to win, got %d", cfg.SocksPort)
		}
	})

	t.Run("missing explicit config file fails", func(t *testing.T) {
		t.Parallel()

		cmd := newRotateCmdWithFlags(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
		_, _, err := buildRotateConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid file values produce warnings, not errors", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".anonymityengine")
		if err := os.WriteFile(path, []byte("socks_port: 99999\n"), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := newRotateCmdWithFlags(t, "-c", path)
		cfg, warnings, err := buildRotateConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(warnings) != 1 {
			t.Errorf("expected 1 warning, got %v", warnings)
		}
		if cfg.SocksPort != config.DefaultSocksPort {
			t.Errorf("expected default kept, got %d", cfg.SocksPort)
		}
	})
}

func TestResolveLogFile(t *testing.T) {
	t.Parallel()

	t.Run("empty path stays empty", func(t *testing.T) {
		t.Parallel()

		if got := resolveLogFile(""); got != "" {
			t.Errorf("expected empty path kept, got %q", got)
		}
	})

	t.Run("absolute path is kept", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "rotation.log")
		if got := resolveLogFile(path); got != path {
			t.Errorf("expected absolute path kept, got %q", got)
		}
	})

	t.Run("relative path is anchored in the state dir", func(t *testing.T) {
		t.Parallel()

		got := resolveLogFile("rotation.log")
		want := filepath.Join(config.XDGStateDir(), "rotation.log")
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

func TestRotateCmd_ConflictingReportFormats(t *testing.T) {
	t.Parallel()

	cmd := NewRotateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--json", "--markdown", "-i", "60s", "-n", "1"})

	err := cmd.Execute()
	if !errors.Is(err, config.ErrConflictingReportFormats) {
		t.Errorf("expected ErrConflictingReportFormats, got %v", err)
	}
}

func TestBuildStrategies(t *testing.T) {
	t.Parallel()

	t.Run("preserves configured order", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.RestartStrategies = []string{"signal", "systemctl", "newnym"}

		strategies, err := buildStrategies(cfg, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var names []string
		for _, s := range strategies {
			names = append(names, s.Name())
		}
		if got := strings.Join(names, ","); got != "signal,systemctl,newnym" {
			t.Errorf("expected configured order preserved, got %s", got)
		}
	})

	t.Run("unknown strategy name fails", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.RestartStrategies = []string{"reboot-the-box"}

		if _, err := buildStrategies(cfg, nil); err == nil {
			t.Error("expected error for unknown strategy")
		}
	})
}

func TestPrintAttempt(t *testing.T) {
	t.Parallel()

	t.Run("changed attempt", func(t *testing.T) {
		t.Parallel()

		r := model.NewAttemptResult(model.OutcomeChanged)
		r.OldAddress = model.MustNewExitAddress("10.0.0.1")
		r.NewAddress = model.MustNewExitAddress("10.0.0.2")
		r.Strategy = "newnym"
		r.Retries = 1
		r.Elapsed = 2 * time.Second

		var out bytes.Buffer
		printAttempt(&out, 3, r)

		got := out.String()
		for _, want := range []string{"[3]", "changed", "10.0.0.1 -> 10.0.0.2", "newnym"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected %q in output %q", want, got)
			}
		}
	})

	t.Run("restart failure shows the reason", func(t *testing.T) {
		t.Parallel()

		r := model.NewAttemptResult(model.OutcomeRestartFailed)
		r.Err = "all strategies exhausted"

		var out bytes.Buffer
		printAttempt(&out, 1, r)

		if !strings.Contains(out.String(), "all strategies exhausted") {
			t.Errorf("expected failure reason, got %q", out.String())
		}
	})

	t.Run("unknown addresses render as unknown", func(t *testing.T) {
		t.Parallel()

		r := model.NewAttemptResult(model.OutcomeUnknown)
		r.Err = "all check services failed"

		var out bytes.Buffer
		printAttempt(&out, 2, r)

		if !strings.Contains(out.String(), "unknown -> unknown") {
			t.Errorf("expected unknown placeholders, got %q", out.String())
		}
	})
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	session := &report.Session{
		StartedAt:  time.Now().Add(-90 * time.Second),
		FinishedAt: time.Now(),
		Cancelled:  true,
	}
	state := rotation.State{
		LastAddress: model.MustNewExitAddress("10.0.0.2"),
		Successes:   2,
		Failures:    1,
	}

	var out bytes.Buffer
	printSummary(&out, session, state)

	got := out.String()
	for _, want := range []string{"2 succeeded", "1 failed", "10.0.0.2", "(interrupted)"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in summary %q", want, got)
		}
	}
}
