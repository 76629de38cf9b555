package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heathw/tesla-powerwall/internal/config"
	"github.com/heathw/tesla-powerwall/internal/logging"
	"github.com/heathw/tesla-powerwall/internal/ui"
	"github.com/heathw/tesla-powerwall/pkg/powerwall"
)

// Environment variables read when the matching flag is not given
const (
	envHost     = "POWERWALL_HOST"
	envEmail    = "POWERWALL_EMAIL"
	envPassword = "POWERWALL_PASSWORD"
)

const (
	formatDetailed = "detailed"
	formatJSON     = "json"
)

// Persistent flags shared by every gateway command
var globalFlags struct {
	gateway   string
	host      string
	email     string
	user      string
	timeout   time.Duration
	verifyTLS bool
	pin       string
	format    string
	logLevel  string
	noLogin   bool
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&globalFlags.gateway, "gateway", "g", "", "Saved gateway name (default: the configured default)")
	pf.StringVar(&globalFlags.host, "host", "", "Gateway address, overrides the saved gateway (env "+envHost+")")
	pf.StringVar(&globalFlags.email, "email", "", "Login email (env "+envEmail+")")
	pf.StringVar(&globalFlags.user, "user", string(powerwall.UserCustomer), "Login role (customer, installer)")
	pf.DurationVar(&globalFlags.timeout, "timeout", powerwall.DefaultTimeout, "Per-request timeout")
	pf.BoolVar(&globalFlags.verifyTLS, "verify-tls", false, "Verify the gateway TLS certificate")
	pf.StringVar(&globalFlags.pin, "pin", "", "Firmware version to assume instead of probing, e.g. 21.44.1")
	pf.StringVarP(&globalFlags.format, "format", "o", "", "Output format (detailed, json)")
	pf.StringVar(&globalFlags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&globalFlags.noLogin, "no-login", false, "Skip login, only unauthenticated endpoints will work")
}

// connection holds the resolved settings for one gateway
type connection struct {
	name      string // saved gateway name, empty for an ad hoc --host
	host      string
	email     string
	user      powerwall.User
	timeout   time.Duration
	verifyTLS bool
	pin       string
}

// resolveConnection merges flags, environment and the saved gateway named
// gateway (the default one when empty). Flags win over the saved gateway,
// which wins over the environment.
func resolveConnection(cmd *cobra.Command, reg *config.Registry, gateway string) (*connection, error) {
	flags := cmd.Flags()
	conn := &connection{
		timeout:   globalFlags.timeout,
		verifyTLS: globalFlags.verifyTLS,
	}
	userName := globalFlags.user

	host := globalFlags.host
	if host == "" && gateway == "" {
		host = os.Getenv(envHost)
	}

	if host != "" {
		conn.host = host
		conn.name = gateway
	} else {
		name, gw, err := reg.ResolveGateway(gateway)
		if err != nil {
			return nil, fmt.Errorf("%w (use --host or 'powerwall gateways add')", err)
		}
		conn.name = name
		conn.host = gw.Host
		conn.email = gw.Email
		conn.pin = gw.PinnedVersion
		if gw.User != "" && !flags.Changed("user") {
			userName = gw.User
		}
		if !flags.Changed("timeout") {
			d, err := gw.TimeoutDuration(globalFlags.timeout)
			if err != nil {
				return nil, fmt.Errorf("gateway %q: %w", name, err)
			}
			conn.timeout = d
		}
		if !flags.Changed("verify-tls") {
			conn.verifyTLS = gw.VerifyTLS
		}
	}

	if globalFlags.email != "" {
		conn.email = globalFlags.email
	} else if conn.email == "" {
		conn.email = os.Getenv(envEmail)
	}
	if globalFlags.pin != "" {
		conn.pin = globalFlags.pin
	}

	user, err := powerwall.ParseUser(userName)
	if err != nil {
		return nil, err
	}
	conn.user = user
	return conn, nil
}

// label names the gateway for headers and log fields
func (c *connection) label() string {
	if c.name != "" {
		return c.name
	}
	return c.host
}

// newClient builds an unauthenticated client for the connection
func (c *connection) newClient() (*powerwall.Client, error) {
	opts := []powerwall.Option{
		powerwall.WithTimeout(c.timeout),
		powerwall.WithVerifyTLS(c.verifyTLS),
		powerwall.WithInsecureWarning(true),
		powerwall.WithLogger(logging.GetLogger().With(zap.String("gateway", c.label()))),
	}
	if c.pin != "" {
		opts = append(opts, powerwall.WithPinnedVersion(c.pin))
	}
	return powerwall.New(c.host, opts...)
}

// password reads the password from the environment or prompts for it
func (c *connection) password() (string, error) {
	if pw := os.Getenv(envPassword); pw != "" {
		return pw, nil
	}
	return ui.PromptPassword(os.Stderr, fmt.Sprintf("Password for %s on %s: ", c.email, c.host))
}

// session is an open client plus the settings it was built from
type session struct {
	conn   *connection
	client *powerwall.Client
	reg    *config.Registry
}

// openSession resolves the gateway and logs in unless --no-login is set
// or login is false.
func openSession(ctx context.Context, cmd *cobra.Command, login bool) (*session, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, err
	}
	conn, err := resolveConnection(cmd, reg, globalFlags.gateway)
	if err != nil {
		return nil, err
	}
	client, err := conn.newClient()
	if err != nil {
		return nil, err
	}

	s := &session{conn: conn, client: client, reg: reg}
	if !login || globalFlags.noLogin {
		return s, nil
	}

	if conn.email == "" {
		return nil, fmt.Errorf("no login email for %s (use --email or %s)", conn.label(), envEmail)
	}
	pw, err := conn.password()
	if err != nil {
		return nil, err
	}
	if _, err := client.LoginAs(ctx, conn.user, conn.email, pw, false); err != nil {
		return nil, err
	}
	return s, nil
}

// close logs out; failures only matter for the log
func (s *session) close(ctx context.Context) {
	if err := s.client.Logout(ctx); err != nil {
		logging.GetLogger().Debug("Logout failed", zap.String("gateway", s.conn.label()), zap.Error(err))
	}
}

// recordSeen stores the firmware version seen on a saved gateway
func (s *session) recordSeen(version string) {
	if s.conn.name == "" || s.reg.GetGateway(s.conn.name) == nil {
		return
	}
	s.reg.UpdateGatewaySeen(s.conn.name, version)
	if err := s.reg.Save(); err != nil {
		logging.GetLogger().Warn("Failed to save gateway state", zap.Error(err))
	}
}

// withSession opens a session, runs fn and logs out again. Errors are
// printed with troubleshooting advice before being returned to cobra.
func withSession(cmd *cobra.Command, login bool, fn func(ctx context.Context, s *session) error) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, cmd, login)
	if err != nil {
		return reportError(cmd, "Could not connect", err)
	}
	defer s.close(ctx)

	if err := fn(ctx, s); err != nil {
		return reportError(cmd, "Command failed", err)
	}
	return nil
}

// reportError prints a failure box in detailed mode and returns err
func reportError(cmd *cobra.Command, title string, err error) error {
	if outputFormat() == formatJSON {
		return err
	}
	tips := ui.TroubleshootingFromHint(powerwall.TroubleshootingHint(err))
	newPrinter(cmd).PrintError(title, err, tips)
	return err
}

func newPrinter(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout())
}

// outputFormat returns --format, falling back to the saved preference
func outputFormat() string {
	if globalFlags.format != "" {
		return globalFlags.format
	}
	if reg, err := config.LoadRegistry(); err == nil && reg.Preferences != nil && reg.Preferences.OutputFormat != "" {
		return reg.Preferences.OutputFormat
	}
	return formatDetailed
}
