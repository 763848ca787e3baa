package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zioerenkl/AnonymityEngine/internal/config"
	"github.com/zioerenkl/AnonymityEngine/internal/ipcheck"
	"github.com/zioerenkl/AnonymityEngine/internal/log"
	"github.com/zioerenkl/AnonymityEngine/internal/tor"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the current Tor exit address",
		Long: `Check performs a single probe through the Tor SOCKS proxy and prints
the externally visible exit address. Useful for verifying the proxy setup
before starting a rotation loop.

Examples:
  # Check through the default proxy at 127.0.0.1:9050
  anonymityengine check

  # Check through a proxy on a non-standard port
  anonymityengine check --socks-port 9150`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	cmd.Flags().Int("socks-port", config.DefaultSocksPort,
		"Local Tor SOCKS5 proxy port")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each address check request")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .anonymityengine in current or home directory)")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	cfg, warnings, err := buildCheckConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	cfg.Verbose = getVerboseFlag(cmd)
	logger := log.NewLogger(cmd.ErrOrStderr(), log.Options{
		Level:   cfg.Logging.Level,
		Verbose: cfg.Verbose,
	})
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := tor.NewClient(cfg.SocksAddr(), cfg.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create Tor client: %w", err)
	}

	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		return fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s)",
			status, cfg.SocksAddr())
	}

	checker := ipcheck.NewChecker(
		client.NewHTTPClient(),
		cfg.CheckServices,
		ipcheck.WithUserAgent(cfg.UserAgent),
		ipcheck.WithTimeout(cfg.Timeout),
		ipcheck.WithMaxBodySize(config.DefaultMaxBodySize),
	)

	addr, err := checker.FetchAddress(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return nil
}

// buildCheckConfig merges defaults, the optional config file, and the
// check command's flags.
func buildCheckConfig(cmd *cobra.Command) (*config.Config, []string, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

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

	if cmd.Flags().Changed("socks-port") {
		if cfg.SocksPort, err = cmd.Flags().GetInt("socks-port"); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Flags().Changed("timeout") {
		if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
			return nil, nil, err
		}
	}

	return cfg, warnings, nil
}
