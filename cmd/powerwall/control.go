package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heathw/tesla-powerwall/internal/config"
	"github.com/heathw/tesla-powerwall/internal/exporter"
	"github.com/heathw/tesla-powerwall/internal/logging"
	"github.com/heathw/tesla-powerwall/internal/ui"
	"github.com/heathw/tesla-powerwall/pkg/powerwall"
)

var (
	assumeYes     bool
	watchInterval time.Duration
	exportListen  string
	exportPath    string
	exportAll     bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)

	stopCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	pinCmd.Flags().Bool("clear", false, "Remove the saved pin")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Refresh interval")
	exportCmd.Flags().StringVar(&exportListen, "listen", "", "Listen address (default from config, :9871)")
	exportCmd.Flags().StringVar(&exportPath, "metrics-path", "", "Metrics path (default from config, /metrics)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every saved gateway")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the site controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			if err := s.client.Run(ctx); err != nil {
				return err
			}
			r := newReport("Site controller started")
			r.add("Running", "running", true, nil)
			return r.print(cmd, s)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the site controller",
	Long: `Stop the site controller. While it is stopped the Powerwalls neither
charge nor discharge. Start it again with 'powerwall run'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes && outputFormat() != formatJSON {
			ok := ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Stop site controller", []string{
				"The Powerwalls stop charging and discharging",
				"Backup during a grid outage is not available until 'powerwall run'",
			})
			if !ok {
				return nil
			}
		}
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			if err := s.client.Stop(ctx); err != nil {
				return err
			}
			r := newReport("Site controller stopped")
			r.add("Running", "running", false, nil)
			return r.print(cmd, s)
		})
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin [version]",
	Short: "Save the firmware version of a gateway",
	Long: `Save the firmware version of a saved gateway so that version dependent
commands skip the extra status request.

Without a version the gateway is asked for its firmware version.
With --clear the saved pin is removed.`,
	Example: `  powerwall pin --gateway home
  powerwall pin 21.44.1 --gateway home
  powerwall pin --clear --gateway home`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clearPin, _ := cmd.Flags().GetBool("clear")
		return withSession(cmd, false, func(ctx context.Context, s *session) error {
			gw := s.reg.GetGateway(s.conn.name)
			if gw == nil {
				return fmt.Errorf("pin needs a saved gateway (use --gateway)")
			}

			r := newReport("Firmware pin")
			switch {
			case clearPin:
				s.client.UnpinVersion()
				gw.PinnedVersion = ""
				r.add("Pinned", "pinned", "", nil)
			case len(args) == 1:
				if err := s.client.PinVersion(args[0]); err != nil {
					return err
				}
				gw.PinnedVersion = args[0]
				r.add("Pinned", "pinned", args[0], nil)
			default:
				s.client.UnpinVersion()
				v, err := s.client.DetectAndPinVersion(ctx)
				if err != nil {
					return err
				}
				gw.PinnedVersion = v.String()
				gw.LastVersion = v.String()
				r.add("Pinned", "pinned", v.String(), nil)
			}

			if err := s.reg.Save(); err != nil {
				return err
			}
			return r.print(cmd, s)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show live charge and power flow",
	Long: `Show charge, grid status and the power through each meter, refreshed
every --interval until q is pressed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval < time.Second {
			return fmt.Errorf("--interval must be at least 1s")
		}
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ui.RunWatch(ctx, s.conn.label(), watchInterval, func(ctx context.Context) (*ui.Snapshot, error) {
				return readSnapshot(ctx, s.client)
			})
		})
	},
}

// readSnapshot reads everything the watch view shows
func readSnapshot(ctx context.Context, client *powerwall.Client) (*ui.Snapshot, error) {
	charge, err := client.GetCharge(ctx)
	if err != nil {
		return nil, err
	}
	grid, err := client.GetGridStatus(ctx)
	if err != nil {
		return nil, err
	}
	agg, err := client.GetMeters(ctx)
	if err != nil {
		return nil, err
	}

	snap := &ui.Snapshot{Charge: charge, GridStatus: string(grid), TakenAt: time.Now()}
	for _, f := range []struct {
		meter func() (*powerwall.Meter, error)
		dest  *float64
	}{
		{agg.Site, &snap.SitePower},
		{agg.Solar, &snap.SolarPower},
		{agg.Battery, &snap.BatteryPower},
		{agg.Load, &snap.LoadPower},
	} {
		m, err := f.meter()
		if err != nil {
			return nil, err
		}
		if *f.dest, err = m.Power(2); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Serve gateway readings as Prometheus metrics",
	Long: `Serve charge, meter, grid and site controller readings as Prometheus
metrics. Every scrape reads the gateway. When the session expires the
exporter logs in again with POWERWALL_PASSWORD.

With --all every saved gateway is exported; they share POWERWALL_PASSWORD.`,
	Example: `  POWERWALL_PASSWORD=secret powerwall export
  powerwall export --all --listen :9100`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	settings := reg.ExporterSettings()
	if exportListen != "" {
		settings.ListenAddress = exportListen
	}
	if exportPath != "" {
		settings.MetricsPath = exportPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conns []*connection
	if exportAll {
		if globalFlags.host != "" {
			return fmt.Errorf("--all cannot be combined with --host")
		}
		for _, name := range reg.GatewayNames() {
			conn, err := resolveConnection(cmd, reg, name)
			if err != nil {
				return err
			}
			conns = append(conns, conn)
		}
		if len(conns) == 0 {
			return fmt.Errorf("no saved gateways to export")
		}
	} else {
		conn, err := resolveConnection(cmd, reg, globalFlags.gateway)
		if err != nil {
			return err
		}
		conns = append(conns, conn)
	}

	logger := logging.GetLogger()
	password := os.Getenv(envPassword)

	collectors := make([]*exporter.Collector, 0, len(conns))
	for _, conn := range conns {
		client, err := conn.newClient()
		if err != nil {
			return err
		}

		var opts []exporter.Option
		opts = append(opts, exporter.WithLogger(logger))
		if !globalFlags.noLogin && conn.email != "" && password != "" {
			opts = append(opts, exporter.WithCredentials(conn.email, password))
			if _, err := client.LoginAs(ctx, conn.user, conn.email, password, false); err != nil {
				// The collector retries on the next scrape
				logger.Warn("Initial login failed", zap.String("gateway", conn.label()), zap.Error(err))
			}
		}
		collectors = append(collectors, exporter.NewCollector(conn.label(), client, opts...))
	}

	cs := make([]prometheus.Collector, 0, len(collectors))
	for _, c := range collectors {
		cs = append(cs, c)
	}
	srv, err := exporter.NewServer(settings.ListenAddress, settings.MetricsPath, logger, cs...)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics for %d gateway(s) on %s%s\n",
		len(collectors), settings.ListenAddress, settings.MetricsPath)
	return srv.ListenAndServe(ctx)
}
