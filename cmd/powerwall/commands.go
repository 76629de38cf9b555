package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heathw/tesla-powerwall/internal/ui"
	"github.com/heathw/tesla-powerwall/pkg/powerwall"
)

var (
	meterPrecision int
	skipVerify     bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chargeCmd)
	rootCmd.AddCommand(metersCmd)
	rootCmd.AddCommand(gridCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(sitemasterCmd)
	rootCmd.AddCommand(deviceTypeCmd)
	rootCmd.AddCommand(serialsCmd)
	rootCmd.AddCommand(operationCmd)
	rootCmd.AddCommand(solarsCmd)
	rootCmd.AddCommand(vinCmd)
	rootCmd.AddCommand(firmwareCmd)

	metersCmd.Flags().IntVar(&meterPrecision, "precision", powerwall.DefaultKWPrecision, "Decimal places for kW and kWh values")
	siteCmd.AddCommand(siteSetNameCmd)
	siteSetNameCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "Skip reading the name back")
}

// statusCmd shows /api/status, which the gateway serves without login
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway firmware and uptime",
	Long: `Show the gateway status: firmware version, git hash, device type,
sync protocol, start time and uptime.

This endpoint does not require a login.`,
	Example: `  powerwall status --host 192.168.91.1
  powerwall status --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, false, func(ctx context.Context, s *session) error {
			st, err := s.client.GetStatus(ctx)
			if err != nil {
				return err
			}

			r := newReport("Gateway status")
			ver, verErr := st.Version()
			r.add("Firmware", "version", ver, verErr)
			gitHash, err := st.GitHash()
			r.add("Git hash", "git_hash", gitHash, err)
			dt, err := st.DeviceType()
			r.add("Device type", "device_type", dt, err)
			sync, err := st.SyncType()
			r.add("Sync type", "sync_type", sync, err)
			start, err := st.StartTime()
			r.add("Started", "start_time", start, err)
			up, err := st.UpTime()
			r.add("Uptime", "up_time", up, err)
			isNew, err := st.IsNew()
			r.add("New", "is_new", isNew, err)
			count, err := st.CommissionCount()
			r.add("Commission count", "commission_count", count, err)

			if verErr == nil {
				s.recordSeen(ver)
			}
			return r.print(cmd, s)
		})
	},
}

var chargeCmd = &cobra.Command{
	Use:   "charge",
	Short: "Show the battery charge",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			charge, err := s.client.GetCharge(ctx)
			if err != nil {
				return err
			}
			r := newReport("Battery charge")
			r.details = append(r.details, ui.Detail{Key: "Charge", Value: percent(charge)})
			r.data["percentage"] = charge
			return r.print(cmd, s)
		})
	},
}

var metersCmd = &cobra.Command{
	Use:   "meters",
	Short: "Show power and energy per meter",
	Long: `Show the aggregated meter readings: instant power in kW, energy
imported and exported in kWh, and the direction of flow for each meter.`,
	Example: `  powerwall meters
  powerwall meters --precision 3 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if meterPrecision < 0 {
			return fmt.Errorf("--precision must not be negative")
		}
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			agg, err := s.client.GetMeters(ctx)
			if err != nil {
				return err
			}
			meters, err := agg.Meters()
			if err != nil {
				return err
			}

			r := newReport("Meters")
			for _, m := range meters {
				detail, entry := meterReport(m, meterPrecision)
				r.details = append(r.details, detail)
				r.data[string(m.Type)] = entry
			}
			return r.print(cmd, s)
		})
	},
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Show the grid connection state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			status, err := s.client.GetGridStatus(ctx)
			if err != nil {
				return err
			}
			r := newReport("Grid")
			r.add("Status", "grid_status", status, nil)
			active, err := s.client.IsGridServicesActive(ctx)
			r.add("Grid services active", "grid_services_active", active, err)
			return r.print(cmd, s)
		})
	},
}

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Show the site configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			info, err := s.client.GetSiteInfo(ctx)
			if err != nil {
				return err
			}

			r := newReport("Site")
			name, err := info.SiteName()
			r.add("Name", "site_name", name, err)
			tz, err := info.Timezone()
			r.add("Timezone", "timezone", tz, err)
			energy, err := info.NominalSystemEnergy()
			r.add("Nominal energy (kWh)", "nominal_system_energy_kwh", energy, err)
			power, err := info.NominalSystemPower()
			r.add("Nominal power (kW)", "nominal_system_power_kw", power, err)
			maxP, err := info.MaxSiteMeterPower()
			r.add("Max site meter power (kW)", "max_site_meter_power_kw", maxP, err)
			minP, err := info.MinSiteMeterPower()
			r.add("Min site meter power (kW)", "min_site_meter_power_kw", minP, err)
			code, err := info.GridCode()
			r.add("Grid code", "grid_code", code, err)
			voltage, err := info.GridVoltageSetting()
			r.add("Grid voltage (V)", "grid_voltage_setting", voltage, err)
			freq, err := info.GridFrequencySetting()
			r.add("Grid frequency (Hz)", "grid_freq_setting", freq, err)
			country, err := info.Country()
			r.add("Country", "country", country, err)
			state, err := info.State()
			r.add("State", "state", state, err)
			region, err := info.Region()
			r.add("Region", "region", region, err)
			utility, err := info.Utility()
			r.add("Utility", "utility", utility, err)
			return r.print(cmd, s)
		})
	},
}

var siteSetNameCmd = &cobra.Command{
	Use:     "set-name <name>",
	Short:   "Rename the site",
	Example: `  powerwall site set-name "Beach house"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			if err := s.client.SetSiteName(ctx, args[0]); err != nil {
				return err
			}
			r := newReport("Site renamed")
			r.add("Name", "site_name", args[0], nil)

			if !skipVerify {
				attempts, err := verifyChange(ctx, defaultVerifyOptions(), func(ctx context.Context) (bool, string, error) {
					info, err := s.client.GetSiteInfo(ctx)
					if err != nil {
						return false, "", err
					}
					name, err := info.SiteName()
					if err != nil {
						return false, "", err
					}
					return name == args[0], name, nil
				})
				if err != nil {
					return err
				}
				r.add("Verify attempts", "verify_attempts", attempts, nil)
			}
			return r.print(cmd, s)
		})
	},
}

var sitemasterCmd = &cobra.Command{
	Use:   "sitemaster",
	Short: "Show the site controller state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			sm, err := s.client.GetSiteMaster(ctx)
			if err != nil {
				return err
			}
			r := newReport("Site controller")
			status, err := sm.Status()
			r.add("Status", "status", status, err)
			running, err := sm.IsRunning()
			r.add("Running", "running", running, err)
			connected, err := sm.IsConnectedToTesla()
			r.add("Connected to Tesla", "connected_to_tesla", connected, err)
			psm, err := sm.IsPowerSupplyMode()
			r.add("Power supply mode", "power_supply_mode", psm, err)
			return r.print(cmd, s)
		})
	},
}

var deviceTypeCmd = &cobra.Command{
	Use:   "device-type",
	Short: "Show the gateway hardware type",
	Long: `Show the gateway hardware type (Gateway 1, Gateway 2 or Powerwall 2 SMC).

Firmware from 1.46.0 reports the type in /api/status, older firmware has a
dedicated endpoint. Unless --pin or a saved pinned version is given, the
firmware version is read first to choose the endpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			dt, err := s.client.GetDeviceType(ctx)
			if err != nil {
				return err
			}
			r := newReport("Device type")
			r.details = append(r.details, ui.Detail{Key: "Device type", Value: dt.String()})
			r.data["device_type"] = dt
			return r.print(cmd, s)
		})
	},
}

var serialsCmd = &cobra.Command{
	Use:   "serials",
	Short: "List the Powerwall serial numbers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			serials, err := s.client.GetSerialNumbers(ctx)
			if err != nil {
				return err
			}
			r := newReport("Serial numbers")
			for i, serial := range serials {
				r.details = append(r.details, ui.Detail{Key: fmt.Sprintf("Powerwall %d", i+1), Value: serial})
			}
			r.data["serial_numbers"] = serials
			return r.print(cmd, s)
		})
	},
}

var operationCmd = &cobra.Command{
	Use:   "operation",
	Short: "Show the operation mode and backup reserve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			mode, err := s.client.GetOperationMode(ctx)
			if err != nil {
				return err
			}
			r := newReport("Operation")
			r.add("Mode", "real_mode", mode, nil)
			reserve, err := s.client.GetBackupReservePercentage(ctx)
			if err == nil {
				r.details = append(r.details, ui.Detail{Key: "Backup reserve", Value: percent(reserve)})
				r.data["backup_reserve_percent"] = reserve
			}
			return r.print(cmd, s)
		})
	},
}

var solarsCmd = &cobra.Command{
	Use:   "solars",
	Short: "List the attached solar inverters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			solars, err := s.client.GetSolars(ctx)
			if err != nil {
				return err
			}

			r := newReport("Solar inverters")
			entries := make([]map[string]any, 0, len(solars))
			for i, solar := range solars {
				brand, _ := solar.Brand()
				model, _ := solar.Model()
				entry := map[string]any{"brand": brand, "model": model}
				value := fmt.Sprintf("%s %s", display(brand), display(model))
				if rating, err := solar.PowerRatingWatts(); err == nil {
					entry["power_rating_watts"] = rating
					value += fmt.Sprintf(" (%s W)", formatFloat(rating))
				}
				r.details = append(r.details, ui.Detail{Key: fmt.Sprintf("Inverter %d", i+1), Value: value})
				entries = append(entries, entry)
			}
			if len(solars) == 0 {
				r.details = append(r.details, ui.Detail{Key: "Inverters", Value: "none"})
			}
			r.data["solars"] = entries
			return r.print(cmd, s)
		})
	},
}

var vinCmd = &cobra.Command{
	Use:   "vin",
	Short: "Show the gateway VIN",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session) error {
			vin, err := s.client.GetVIN(ctx)
			if err != nil {
				return err
			}
			r := newReport("Gateway VIN")
			r.add("VIN", "vin", vin, nil)
			return r.print(cmd, s)
		})
	},
}

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Show the firmware version",
	Long: `Show the firmware version as reported and as parsed for comparisons,
and whether it is at least 1.46.0 (device type reported in /api/status).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, false, func(ctx context.Context, s *session) error {
			raw, err := s.client.GetVersion(ctx)
			if err != nil {
				return err
			}
			v, err := powerwall.ParseVersion(raw)
			if err != nil {
				return err
			}
			s.recordSeen(raw)

			r := newReport("Firmware")
			r.add("Reported", "version", raw, nil)
			r.add("Parsed", "parsed", v.String(), nil)
			r.add("Reports device type in status", "device_type_in_status", v.AtLeast(powerwall.DeviceTypeVersion), nil)
			if pinned, ok := s.client.PinnedVersion(); ok {
				r.add("Pinned", "pinned", pinned.String(), nil)
			}
			return r.print(cmd, s)
		})
	},
}
