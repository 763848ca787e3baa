package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zioerenkl/AnonymityEngine/internal/config"
	"github.com/zioerenkl/AnonymityEngine/internal/ipcheck"
	"github.com/zioerenkl/AnonymityEngine/internal/log"
	"github.com/zioerenkl/AnonymityEngine/internal/model"
	"github.com/zioerenkl/AnonymityEngine/internal/report"
	"github.com/zioerenkl/AnonymityEngine/internal/restart"
	"github.com/zioerenkl/AnonymityEngine/internal/rotation"
	"github.com/zioerenkl/AnonymityEngine/internal/tor"
)

// NewRotateCmd creates the rotate command.
func NewRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the Tor exit address on a schedule",
		Long: `Rotate runs the identity rotation loop against a local Tor daemon.

Each rotation captures the current exit address, triggers a daemon restart
through a fallback chain (systemctl, service, SIGHUP, control-port NEWNYM),
and verifies through the SOCKS proxy that the address actually changed.

When --interval or --count are omitted, rotate asks for them interactively.

Examples:
  # Rotate every 60 seconds until interrupted
  anonymityengine rotate --interval 60s --count 0

  # Perform exactly five rotations
  anonymityengine rotate -i 30s -n 5

  # Use a private embedded Tor daemon instead of the system service
  anonymityengine rotate --embedded-tor -i 60s -n 3

  # Write a Markdown session report
  anonymityengine rotate -i 60s -n 10 --markdown -o report.md

Configuration file (.anonymityengine) example:
  socks_port: 9050
  control_port: 9051
  timeout: 30
  retry_attempts: 3
  ip_check_services:
    - http://checkip.amazonaws.com
  restart_strategies:
    - newnym
  logging:
    level: debug
    file: /var/log/anonymityengine.log`,
		Args: cobra.NoArgs,
		RunE: runRotateCmd,
	}

	// Rotation behavior flags
	cmd.Flags().DurationP("interval", "i", 0,
		"Sleep between rotations (prompted interactively when omitted)")
	cmd.Flags().IntP("count", "n", -1,
		"Number of rotations, 0 for unlimited (prompted interactively when omitted)")
	cmd.Flags().IntP("retries", "r", config.DefaultRetryAttempts,
		"Verification probes per rotation before declaring the address unchanged")

	// Tor connection flags
	cmd.Flags().Int("socks-port", config.DefaultSocksPort,
		"Local Tor SOCKS5 proxy port")
	cmd.Flags().Int("control-port", config.DefaultControlPort,
		"Local Tor control port (used by the newnym strategy)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each address check and restart attempt")
	cmd.Flags().Bool("embedded-tor", false,
		"Launch a private embedded Tor daemon instead of using the system service")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .anonymityengine in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON session report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown session report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the session report to the specified file path")

	return cmd
}

// rotateOptions holds the per-run options that live outside the Config:
// the loop framing and the report destination.
type rotateOptions struct {
	interval       time.Duration
	count          int
	jsonReport     bool
	markdownReport bool
	reportFile     string
	embeddedTor    bool
}

// runRotateCmd executes the rotate command.
func runRotateCmd(cmd *cobra.Command, _ []string) error {
	cfg, warnings, err := buildRotateConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := rotateOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	if opts.jsonReport && opts.markdownReport {
		return config.ErrConflictingReportFormats
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	cfg.Verbose = getVerboseFlag(cmd)
	logger := log.NewLogger(cmd.ErrOrStderr(), log.Options{
		Level:     cfg.Logging.Level,
		Verbose:   cfg.Verbose,
		File:      resolveLogFile(cfg.Logging.File),
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})
	slog.SetDefault(logger)

	for _, w := range warnings {
		logger.Warn(w)
	}

	// Interval and count fall back to interactive prompts, matching how the
	// tool is typically run: started by hand on the box that runs Tor.
	if !cmd.Flags().Changed("interval") {
		opts.interval, err = promptInterval(cmd.InOrStdin(), cmd.OutOrStdout(), cfg)
		if err != nil {
			return fmt.Errorf("failed to read rotation interval: %w", err)
		}
	}
	if clamped, ok := cfg.ClampInterval(opts.interval); ok {
		logger.Warn("rotation interval out of bounds, clamped",
			"requested", opts.interval,
			"clamped", clamped,
		)
		opts.interval = clamped
	}

	if !cmd.Flags().Changed("count") {
		opts.count, err = promptCount(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("failed to read rotation count: %w", err)
		}
	}
	if opts.count < 0 {
		return errors.New("count must be zero or positive (0 = until interrupted)")
	}

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finishing current rotation...")
		cancel()
	}()

	return runRotation(ctx, cmd, cfg, opts, logger)
}

// rotateOptionsFromFlags reads the loop and report flags.
func rotateOptionsFromFlags(cmd *cobra.Command) (*rotateOptions, error) {
	opts := &rotateOptions{}
	var err error

	if opts.interval, err = cmd.Flags().GetDuration("interval"); err != nil {
		return nil, err
	}
	if opts.count, err = cmd.Flags().GetInt("count"); err != nil {
		return nil, err
	}
	if opts.jsonReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.reportFile, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}
	if opts.embeddedTor, err = cmd.Flags().GetBool("embedded-tor"); err != nil {
		return nil, err
	}

	return opts, nil
}

// buildRotateConfig creates a Config from defaults, the optional config
// file, and flags, in that precedence order. It returns the merged config
// together with any warnings produced while merging file values; the caller
// logs them once the logger exists.
func buildRotateConfig(cmd *cobra.Command) (*config.Config, []string, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

	// If the user explicitly specified a config file path, error if not
	// found. Otherwise a missing file just means defaults.
	explicitConfigPath := configPath != ""
	foundPath := config.FindConfigFile(configPath)

	var warnings []string
	if foundPath != "" {
		file, err := config.LoadFile(foundPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config file %s: %w", foundPath, err)
		}
		warnings = cfg.Apply(file)
	} else if explicitConfigPath {
		return nil, nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	// Flags override file values, but only when actually set.
	if cmd.Flags().Changed("socks-port") {
		if cfg.SocksPort, err = cmd.Flags().GetInt("socks-port"); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Flags().Changed("control-port") {
		if cfg.ControlPort, err = cmd.Flags().GetInt("control-port"); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Flags().Changed("timeout") {
		if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Flags().Changed("retries") {
		if cfg.RetryAttempts, err = cmd.Flags().GetInt("retries"); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Flags().Changed("embedded-tor") {
		if cfg.UseEmbeddedTor, err = cmd.Flags().GetBool("embedded-tor"); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Flags().Changed("tor-timeout") {
		if cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout"); err != nil {
			return nil, nil, err
		}
	}

	return cfg, warnings, nil
}

// runRotation wires the Tor client, the restart chain, and the controller,
// then drives the loop to completion.
func runRotation(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *rotateOptions, logger *slog.Logger) error {
	out := cmd.OutOrStdout()

	client, controlClient, cleanup, err := setupTor(ctx, cfg, opts, logger, out)
	if err != nil {
		return err
	}
	defer cleanup()

	checker := ipcheck.NewChecker(
		client.NewHTTPClient(),
		cfg.CheckServices,
		ipcheck.WithUserAgent(cfg.UserAgent),
		ipcheck.WithTimeout(cfg.Timeout),
		ipcheck.WithMaxBodySize(config.DefaultMaxBodySize),
	)

	strategies, err := buildStrategies(cfg, controlClient)
	if err != nil {
		return err
	}
	invoker := restart.NewInvoker(strategies,
		restart.WithStrategyTimeout(cfg.Timeout),
		restart.WithSettleDelay(config.DefaultSettleDelay),
		restart.WithLogger(logger),
	)

	// Show where we start from. Failure here is not fatal; the first tick
	// re-probes anyway.
	if addr, err := checker.FetchAddress(ctx); err == nil {
		fmt.Fprintf(out, "Current exit address: %s\n\n", addr)
	} else {
		logger.Warn("could not determine initial exit address", "error", err)
		fmt.Fprintf(out, "Current exit address: unknown\n\n")
	}

	session := &report.Session{
		StartedAt: time.Now(),
		Interval:  opts.interval,
		Requested: opts.count,
	}

	controller := rotation.NewController(checker, invoker,
		rotation.WithInterval(opts.interval),
		rotation.WithCount(opts.count),
		rotation.WithRetryAttempts(cfg.RetryAttempts),
		rotation.WithControllerLogger(logger),
		rotation.WithOnAttempt(func(result model.AttemptResult) {
			session.Record(result)
			printAttempt(out, len(session.Attempts), result)
		}),
	)

	logger.Info("starting rotation loop",
		"interval", opts.interval,
		"count", opts.count,
		"strategies", cfg.RestartStrategies,
	)

	state, runErr := controller.Run(ctx)

	session.FinishedAt = time.Now()
	session.Cancelled = runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded))
	session.FinalAddress = state.LastAddress

	printSummary(out, session, state)

	if opts.jsonReport || opts.markdownReport || opts.reportFile != "" {
		if err := writeSessionReport(opts, session); err != nil {
			logger.Error("failed to write session report", "error", err)
			return err
		}
	}

	// Interruption is a normal way to end an unlimited run, not a failure.
	if runErr != nil && !session.Cancelled {
		return runErr
	}
	return nil
}

// setupTor builds the SOCKS client and control client for either the system
// daemon or an embedded one. The returned cleanup stops the embedded daemon
// when there is one and is safe to call unconditionally.
func setupTor(ctx context.Context, cfg *config.Config, opts *rotateOptions, logger *slog.Logger, out io.Writer) (*tor.Client, *tor.ControlClient, func(), error) {
	noop := func() {}

	if !opts.embeddedTor && !cfg.UseEmbeddedTor {
		client, err := tor.NewClient(cfg.SocksAddr(), cfg.Timeout)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
		}

		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, nil, noop, fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s)",
				status, cfg.SocksAddr())
		}
		logger.Info("Tor proxy connection verified", "address", cfg.SocksAddr())

		auth := tor.ControlAuth{
			Password:   cfg.ControlPassword,
			CookiePath: cfg.ControlCookiePath,
		}
		controlClient, err := tor.NewControlClient(cfg.ControlAddr(), auth, cfg.Timeout)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create control client: %w", err)
		}

		return client, controlClient, noop, nil
	}

	// Embedded daemon path.
	fmt.Fprintf(out, "Starting embedded Tor daemon...\n")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	cleanup := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embedded.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embedded.SocksAddr(),
		"controlAddr", embedded.ControlAddr(),
	)
	fmt.Fprintf(out, "Embedded Tor daemon started successfully!\nSOCKS proxy: %s\n\n", embedded.SocksAddr())

	client, err := embedded.NewClient(cfg.Timeout)
	if err != nil {
		cleanup()
		return nil, nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
	}

	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		cleanup()
		return nil, nil, noop, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	controlClient, err := embedded.NewControlClient(cfg.Timeout)
	if err != nil {
		cleanup()
		return nil, nil, noop, fmt.Errorf("failed to create control client: %w", err)
	}

	// A private daemon is not under any service manager; only the control
	// port can rotate it.
	cfg.RestartStrategies = []string{"newnym"}

	return client, controlClient, cleanup, nil
}

// resolveLogFile anchors relative log-file paths in the XDG state
// directory so that a bare "rotation.log" in the config file does not
// scatter logs across whatever directory the tool happens to run from.
func resolveLogFile(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(config.XDGStateDir(), path)
}

// buildStrategies translates the configured strategy names into the
// restart fallback chain, preserving order.
func buildStrategies(cfg *config.Config, controlClient *tor.ControlClient) ([]restart.Strategy, error) {
	runner := restart.ExecRunner{}

	strategies := make([]restart.Strategy, 0, len(cfg.RestartStrategies))
	for _, name := range cfg.RestartStrategies {
		switch name {
		case "systemctl":
			strategies = append(strategies, restart.NewSystemctlStrategy(cfg.TorService, runner))
		case "service":
			strategies = append(strategies, restart.NewServiceCommandStrategy(cfg.TorService, runner))
		case "signal":
			strategies = append(strategies, restart.NewSignalStrategy(cfg.TorService, runner))
		case "newnym":
			strategies = append(strategies, restart.NewNewNymStrategy(controlClient))
		default:
			return nil, fmt.Errorf("unknown restart strategy %q", name)
		}
	}

	if len(strategies) == 0 {
		return nil, restart.ErrNoStrategies
	}
	return strategies, nil
}

// printAttempt writes the per-rotation console line.
func printAttempt(out io.Writer, n int, result model.AttemptResult) {
	oldAddr := result.OldAddress.String()
	if oldAddr == "" {
		oldAddr = "unknown"
	}
	newAddr := result.NewAddress.String()
	if newAddr == "" {
		newAddr = "unknown"
	}

	switch result.Outcome {
	case model.OutcomeChanged:
		fmt.Fprintf(out, "[%d] %s  %s -> %s (strategy %s, %d probe(s), %s)\n",
			n, result.OutcomeText, oldAddr, newAddr,
			result.Strategy, result.Retries, result.Elapsed.Round(time.Millisecond))
	case model.OutcomeRestartFailed:
		fmt.Fprintf(out, "[%d] %s: %s\n", n, result.OutcomeText, result.Err)
	default:
		fmt.Fprintf(out, "[%d] %s  %s -> %s (%s)\n",
			n, result.OutcomeText, oldAddr, newAddr, result.Err)
	}
}

// printSummary writes the end-of-run tallies.
func printSummary(out io.Writer, session *report.Session, state rotation.State) {
	fmt.Fprintf(out, "\nRotation finished: %d succeeded, %d failed in %s\n",
		state.Successes, state.Failures, session.Duration().Round(time.Second))
	if !state.LastAddress.IsZero() {
		fmt.Fprintf(out, "Final exit address: %s\n", state.LastAddress)
	}
	if session.Cancelled {
		fmt.Fprintln(out, "(interrupted)")
	}
}

// writeSessionReport renders the session in the requested format.
func writeSessionReport(opts *rotateOptions, session *report.Session) error {
	var output *os.File
	if opts.reportFile != "" {
		dir := filepath.Dir(opts.reportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports record the host's exit addresses over time; keep them
		// readable by the owner only.
		f, err := os.OpenFile(opts.reportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	if opts.jsonReport {
		encoder := json.NewEncoder(output)
		encoder.SetIndent("", "  ")
		return encoder.Encode(session)
	}

	writer := report.NewMarkdownWriter(output)
	_, err := writer.Write(session)
	return err
}
