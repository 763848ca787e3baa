package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for AnonymityEngine.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anonymityengine",
		Short: "Automatic identity rotation for a local Tor daemon",
		Long: `AnonymityEngine rotates the public identity of a local Tor daemon on a
schedule. Each rotation captures the current exit address, restarts or
signals the Tor daemon, and verifies through the SOCKS proxy that the
externally visible address actually changed.

By default it drives a system Tor daemon at 127.0.0.1:9050.
Use --embedded-tor to launch a private daemon instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewRotateCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
