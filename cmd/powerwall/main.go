// Powerwall is a command line client for the local API of a Tesla Backup Gateway.
//
// It reads battery charge, meter readings, grid and site controller state,
// starts and stops the site controller, shows a live power flow view and
// serves the readings as Prometheus metrics.
//
// Usage:
//
//	powerwall [command] [flags]
//
// Gateways can be saved by name with 'powerwall gateways add' so that
// commands only need --gateway, or nothing at all when a default is set.
// Passwords are never saved; set POWERWALL_PASSWORD or enter it when prompted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heathw/tesla-powerwall/internal/logging"
	"github.com/heathw/tesla-powerwall/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "powerwall",
	Short: "Tesla Powerwall local API client",
	Long: `A command line client for the local API of a Tesla Backup Gateway.

Reads charge, meters, grid and site controller state, controls the site
controller and exports readings as Prometheus metrics.

The gateway is chosen with --host, or by name with --gateway from the
gateways saved in the configuration file.`,
	Version: version.Version,
	Example: `  # Save a gateway and make it the default
  powerwall gateways add home --host 192.168.91.1 --email me@example.com --default

  # Read the battery charge
  POWERWALL_PASSWORD=secret powerwall charge

  # Meter readings as JSON
  powerwall meters --format json

  # Live power flow
  powerwall watch`,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent unless --log-level or POWERWALL_LOG_LEVEL is set
		return logging.Initialize(globalFlags.logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat() == formatJSON {
			return newPrinter(cmd).PrintJSON(version.Info())
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "powerwall %s\n", version.Full())
		return err
	},
}
