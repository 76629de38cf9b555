package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heathw/tesla-powerwall/internal/config"
	"github.com/heathw/tesla-powerwall/internal/ui"
	"github.com/heathw/tesla-powerwall/pkg/powerwall"
)

var gatewayAddDefault bool

func init() {
	rootCmd.AddCommand(gatewaysCmd)
	gatewaysCmd.AddCommand(gatewaysAddCmd)
	gatewaysCmd.AddCommand(gatewaysListCmd)
	gatewaysCmd.AddCommand(gatewaysRemoveCmd)
	gatewaysCmd.AddCommand(gatewaysDefaultCmd)

	gatewaysAddCmd.Flags().BoolVar(&gatewayAddDefault, "default", false, "Make this the default gateway")
}

var gatewaysCmd = &cobra.Command{
	Use:   "gateways",
	Short: "Manage saved gateways",
	Long: `Manage the gateways saved in the configuration file.

The file lives in the user config directory (override with POWERWALL_CONFIG).
Passwords are never saved.`,
}

var gatewaysAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save or update a gateway",
	Long: `Save a gateway under a name. The global --host, --email, --user,
--timeout, --verify-tls and --pin flags given with this command are stored.
Adding an existing name updates only the flags given.`,
	Example: `  powerwall gateways add home --host 192.168.91.1 --email me@example.com --default
  powerwall gateways add home --timeout 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		name := args[0]

		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}

		existing := reg.GetGateway(name)
		if existing == nil && globalFlags.host == "" {
			return fmt.Errorf("--host is required for a new gateway")
		}
		if err := validateGatewayFlags(cmd); err != nil {
			return err
		}

		gw := reg.EnsureGateway(name)
		flags := cmd.Flags()
		if globalFlags.host != "" {
			gw.Host = globalFlags.host
		}
		if globalFlags.email != "" {
			gw.Email = globalFlags.email
		}
		if flags.Changed("user") {
			gw.User = globalFlags.user
		}
		if flags.Changed("timeout") {
			gw.Timeout = globalFlags.timeout.String()
		}
		if flags.Changed("verify-tls") {
			gw.VerifyTLS = globalFlags.verifyTLS
		}
		if globalFlags.pin != "" {
			gw.PinnedVersion = globalFlags.pin
		}

		if gatewayAddDefault || len(reg.Gateways) == 1 {
			if err := reg.SetDefaultGateway(name); err != nil {
				return err
			}
		}
		if err := reg.Save(); err != nil {
			return err
		}

		if outputFormat() == formatJSON {
			return newPrinter(cmd).PrintJSON(map[string]any{"name": name, "gateway": gw})
		}
		newPrinter(cmd).PrintSuccess("Gateway saved", gatewayDetails(reg, name, gw)...)
		return nil
	},
}

// validateGatewayFlags rejects values that would only fail on first use
func validateGatewayFlags(cmd *cobra.Command) error {
	if cmd.Flags().Changed("user") {
		if _, err := powerwall.ParseUser(globalFlags.user); err != nil {
			return err
		}
	}
	if globalFlags.pin != "" {
		if _, err := powerwall.ParseVersion(globalFlags.pin); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("timeout") && globalFlags.timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	return nil
}

var gatewaysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved gateways",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}

		p := newPrinter(cmd)
		if outputFormat() == formatJSON {
			return p.PrintJSON(reg.Gateways)
		}

		names := reg.GatewayNames()
		if len(names) == 0 {
			p.PrintWarning("No gateways saved",
				ui.Detail{Key: "Add one", Value: "powerwall gateways add <name> --host <address>"})
			return nil
		}
		for _, name := range names {
			p.PrintSuccess(name, gatewayDetails(reg, name, reg.GetGateway(name))...)
		}
		return nil
	},
}

var gatewaysRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a saved gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if !reg.RemoveGateway(args[0]) {
			return fmt.Errorf("unknown gateway %q", args[0])
		}
		if err := reg.Save(); err != nil {
			return err
		}
		newPrinter(cmd).PrintSuccess("Gateway removed", ui.Detail{Key: "Name", Value: args[0]})
		return nil
	},
}

var gatewaysDefaultCmd = &cobra.Command{
	Use:   "default <name>",
	Short: "Set the default gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if err := reg.SetDefaultGateway(args[0]); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}
		newPrinter(cmd).PrintSuccess("Default gateway set", ui.Detail{Key: "Name", Value: args[0]})
		return nil
	},
}

func gatewayDetails(reg *config.Registry, name string, gw *config.Gateway) []ui.Detail {
	details := []ui.Detail{
		{Key: "Host", Value: gw.Host},
		{Key: "Email", Value: display(gw.Email)},
	}
	if gw.User != "" {
		details = append(details, ui.Detail{Key: "User", Value: gw.User})
	}
	if gw.Timeout != "" {
		details = append(details, ui.Detail{Key: "Timeout", Value: gw.Timeout})
	}
	if gw.VerifyTLS {
		details = append(details, ui.Detail{Key: "Verify TLS", Value: "yes"})
	}
	if gw.PinnedVersion != "" {
		details = append(details, ui.Detail{Key: "Pinned firmware", Value: gw.PinnedVersion})
	}
	if gw.LastVersion != "" {
		details = append(details, ui.Detail{Key: "Last firmware", Value: gw.LastVersion})
	}
	if !gw.LastSeen.IsZero() {
		details = append(details, ui.Detail{Key: "Last seen", Value: gw.LastSeen.Format(time.RFC3339)})
	}
	if reg.Preferences != nil && reg.Preferences.DefaultGateway == name {
		details = append(details, ui.Detail{Key: "Default", Value: "yes"})
	}
	return details
}
