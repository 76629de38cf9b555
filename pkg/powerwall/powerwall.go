package powerwall

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heathw/tesla-powerwall/internal/logging"
)

// Client is a session with one gateway.
//
// It owns the session cookies (set by Login, cleared by Logout) and the
// optional pinned firmware version. A Client is not safe for concurrent use;
// use one Client per goroutine or guard calls with a mutex.
type Client struct {
	transport Transport
	host      string
	timeout   time.Duration
	gate      VersionGate
	cookies   []*http.Cookie
	logger    *zap.Logger
}

type options struct {
	timeout         time.Duration
	httpClient      *http.Client
	transport       Transport
	verifyTLS       bool
	insecureWarning bool
	pinVersion      string
	logger          *zap.Logger
}

// Option configures a Client
type Option func(*options)

// WithTimeout sets the per-request timeout (default 10s)
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient reuses an existing HTTP client, e.g. to share its connection pool.
// TLS settings are then taken from that client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTransport replaces the HTTP transport entirely
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithVerifyTLS enables certificate verification (default off, gateways
// present self-signed certificates)
func WithVerifyTLS(verify bool) Option {
	return func(o *options) { o.verifyTLS = verify }
}

// WithInsecureWarning controls whether an unverified TLS setup is logged as a warning (default off)
func WithInsecureWarning(warn bool) Option {
	return func(o *options) { o.insecureWarning = warn }
}

// WithPinnedVersion pins the firmware version at construction
func WithPinnedVersion(v string) Option {
	return func(o *options) { o.pinVersion = v }
}

// WithLogger sets the logger (default: the package-level silent logger)
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a client for the gateway at endpoint.
// It fails with an invalid version error if WithPinnedVersion is malformed.
func New(endpoint string, opts ...Option) (*Client, error) {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.GetLogger()
	}

	c := &Client{
		host:    endpoint,
		timeout: o.timeout,
		logger:  o.logger,
	}

	if o.pinVersion != "" {
		if err := c.gate.Pin(o.pinVersion); err != nil {
			return nil, err
		}
	}

	switch {
	case o.transport != nil:
		c.transport = o.transport
	case o.httpClient != nil:
		t, err := NewHTTPTransportWithClient(endpoint, o.httpClient)
		if err != nil {
			return nil, err
		}
		c.transport = t
		c.host = t.Host()
	default:
		t, err := NewHTTPTransport(endpoint, o.timeout, o.verifyTLS)
		if err != nil {
			return nil, err
		}
		c.transport = t
		c.host = t.Host()
		if !o.verifyTLS && o.insecureWarning {
			c.logger.Warn("TLS certificate verification is disabled", zap.String("host", c.host))
		}
	}

	return c, nil
}

// IsAuthenticated reports whether a login succeeded and no logout followed
func (c *Client) IsAuthenticated() bool {
	return len(c.cookies) > 0
}

// Login logs in as the customer user
func (c *Client) Login(ctx context.Context, email, password string, forceSMOff bool) (*LoginResponse, error) {
	return c.LoginAs(ctx, UserCustomer, email, password, forceSMOff)
}

// LoginAs logs in with the given role. On success the session cookies are
// stored on the Client; on failure the session is left as it was.
func (c *Client) LoginAs(ctx context.Context, user User, email, password string, forceSMOff bool) (*LoginResponse, error) {
	payload := map[string]any{
		"username":     string(user),
		"email":        email,
		"password":     password,
		"force_sm_off": forceSMOff,
	}

	resp, err := c.send(ctx, http.MethodPost, PathLogin, payload)
	if err != nil {
		return nil, err
	}
	body, err := c.processResponse(PathLogin, resp)
	if err != nil {
		return nil, err
	}
	obj, err := asObject(body, "login")
	if err != nil {
		return nil, err
	}

	login := &LoginResponse{response{raw: obj, category: "login"}}
	token, err := RequireString(obj, "token", "login")
	if err != nil && !IsMissingAttribute(err) {
		return nil, err
	}
	c.cookies = sessionCookies(resp.Cookies, token)

	c.logger.Info("Logged in", zap.String("host", c.host), zap.String("user", string(user)), zap.String("email", email))
	return login, nil
}

// Logout invalidates the server-side session. Calling it without a session
// is a no-op, and a gateway answer of "not logged in" counts as success.
func (c *Client) Logout(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return nil
	}

	resp, err := c.send(ctx, http.MethodGet, PathLogout, nil)
	c.cookies = nil
	if err != nil {
		return err
	}
	if _, err := c.processResponse(PathLogout, resp); err != nil && !IsAccessDenied(err) {
		return err
	}
	c.logger.Info("Logged out", zap.String("host", c.host))
	return nil
}

// Run starts the site controller
func (c *Client) Run(ctx context.Context) error {
	_, err := c.get(ctx, PathSiteMasterRun)
	return err
}

// Stop stops the site controller
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.get(ctx, PathSiteMasterStop)
	return err
}

// GetCharge returns the state of energy in percent, exactly as reported
func (c *Client) GetCharge(ctx context.Context) (float64, error) {
	body, err := c.get(ctx, PathSOE)
	if err != nil {
		return 0, err
	}
	return RequireFloat(body, "percentage", "soe")
}

// GetSiteMaster returns the site controller state
func (c *Client) GetSiteMaster(ctx context.Context) (*SiteMaster, error) {
	obj, err := c.getObject(ctx, PathSiteMaster, "sitemaster")
	if err != nil {
		return nil, err
	}
	return &SiteMaster{response{raw: obj, category: "sitemaster"}}, nil
}

// GetMeters returns the aggregated meter readings
func (c *Client) GetMeters(ctx context.Context) (*MetersAggregates, error) {
	obj, err := c.getObject(ctx, PathMetersAggregates, "meters")
	if err != nil {
		return nil, err
	}
	return &MetersAggregates{response{raw: obj, category: "meters"}}, nil
}

// GetGridStatus returns the grid connection state
func (c *Client) GetGridStatus(ctx context.Context) (GridStatus, error) {
	body, err := c.get(ctx, PathGridStatus)
	if err != nil {
		return "", err
	}
	raw, err := RequireString(body, "grid_status", "grid_status")
	if err != nil {
		return "", err
	}
	return ParseGridStatus(raw)
}

// IsGridServicesActive reports whether grid services are currently active
func (c *Client) IsGridServicesActive(ctx context.Context) (bool, error) {
	body, err := c.get(ctx, PathGridStatus)
	if err != nil {
		return false, err
	}
	return RequireBool(body, "grid_services_active", "grid_status")
}

// GetSiteInfo returns the site configuration
func (c *Client) GetSiteInfo(ctx context.Context) (*SiteInfo, error) {
	obj, err := c.getObject(ctx, PathSiteInfo, "site_info")
	if err != nil {
		return nil, err
	}
	return &SiteInfo{response{raw: obj, category: "site_info"}}, nil
}

// SetSiteName renames the site
func (c *Client) SetSiteName(ctx context.Context, name string) error {
	_, err := c.post(ctx, PathSiteName, map[string]any{"site_name": name})
	return err
}

// GetStatus returns the gateway status
func (c *Client) GetStatus(ctx context.Context) (*PowerwallStatus, error) {
	obj, err := c.getObject(ctx, PathStatus, "status")
	if err != nil {
		return nil, err
	}
	return &PowerwallStatus{response{raw: obj, category: "status"}}, nil
}

// GetDeviceType returns the gateway hardware category.
//
// Firmware from 1.46.0 reports device_type in /api/status; older firmware
// only has /api/device_type. With a pinned version the path is chosen
// without a request; otherwise /api/status is fetched to read the version
// and, on new firmware, the device type from the same response.
func (c *Client) GetDeviceType(ctx context.Context) (DeviceType, error) {
	var status any
	var probed Version
	path, err := c.gate.Resolve(DeviceTypeVersion, func() (Version, error) {
		body, err := c.get(ctx, PathStatus)
		if err != nil {
			return Version{}, err
		}
		status = body
		raw, err := RequireString(body, "version", "status")
		if err != nil {
			return Version{}, err
		}
		probed, err = ParseVersion(raw)
		return probed, err
	})
	if err != nil {
		return "", err
	}

	seen, isPinned := c.gate.Pinned()
	if !isPinned {
		seen = probed
	}
	logging.LogVersionGate(c.logger, "device_type", path.String(), isPinned, seen.String())

	var raw string
	if path == PathLive {
		if status == nil {
			if status, err = c.get(ctx, PathStatus); err != nil {
				return "", err
			}
		}
		raw, err = RequireString(status, "device_type", "status")
	} else {
		var body any
		if body, err = c.get(ctx, PathDeviceType); err != nil {
			return "", err
		}
		raw, err = RequireString(body, "device_type", "device_type")
	}
	if err != nil {
		return "", err
	}
	return ParseDeviceType(raw)
}

// GetSerialNumbers returns the package serial number of every Powerwall
func (c *Client) GetSerialNumbers(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, PathPowerwalls)
	if err != nil {
		return nil, err
	}
	powerwalls, err := RequireSlice(body, "powerwalls", "powerwalls")
	if err != nil {
		return nil, err
	}

	serials := make([]string, 0, len(powerwalls))
	for _, pw := range powerwalls {
		serial, err := RequireString(pw, "PackageSerialNumber", "powerwalls")
		if err != nil {
			return nil, err
		}
		serials = append(serials, serial)
	}
	return serials, nil
}

// GetOperationMode returns the active operating mode
func (c *Client) GetOperationMode(ctx context.Context) (OperationMode, error) {
	body, err := c.get(ctx, PathOperation)
	if err != nil {
		return "", err
	}
	raw, err := RequireString(body, "real_mode", "operation")
	if err != nil {
		return "", err
	}
	return ParseOperationMode(raw)
}

// GetBackupReservePercentage returns the backup reserve in percent
func (c *Client) GetBackupReservePercentage(ctx context.Context) (float64, error) {
	body, err := c.get(ctx, PathOperation)
	if err != nil {
		return 0, err
	}
	return RequireFloat(body, "backup_reserve_percent", "operation")
}

// GetSolars returns the attached solar inverters
func (c *Client) GetSolars(ctx context.Context) ([]*Solar, error) {
	body, err := c.get(ctx, PathSolars)
	if err != nil {
		return nil, err
	}
	entries, err := asArray(body, "solars")
	if err != nil {
		return nil, err
	}

	solars := make([]*Solar, 0, len(entries))
	for _, e := range entries {
		obj, err := asObject(e, "solars")
		if err != nil {
			return nil, err
		}
		solars = append(solars, &Solar{response{raw: obj, category: "solars"}})
	}
	return solars, nil
}

// GetVIN returns the gateway VIN
func (c *Client) GetVIN(ctx context.Context) (string, error) {
	body, err := c.get(ctx, PathConfig)
	if err != nil {
		return "", err
	}
	return RequireString(body, "vin", "config")
}

// GetVersion returns the firmware version string as reported
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	body, err := c.get(ctx, PathStatus)
	if err != nil {
		return "", err
	}
	return RequireString(body, "version", "status")
}

// DetectAndPinVersion reads the firmware version once and pins it
func (c *Client) DetectAndPinVersion(ctx context.Context) (Version, error) {
	raw, err := c.GetVersion(ctx)
	if err != nil {
		return Version{}, err
	}
	if err := c.gate.Pin(raw); err != nil {
		return Version{}, err
	}
	v, _ := c.gate.Pinned()
	c.logger.Debug("Pinned firmware version", zap.String("version", v.String()), zap.String("reported", raw))
	return v, nil
}

// PinVersion pins the firmware version so that gated operations skip probing.
// A malformed version leaves the current pin untouched.
func (c *Client) PinVersion(v string) error {
	if err := c.gate.Pin(v); err != nil {
		return fmt.Errorf("pin version: %w", err)
	}
	return nil
}

// UnpinVersion removes the pin
func (c *Client) UnpinVersion() {
	c.gate.ClearPin()
}

// PinnedVersion returns the pinned version, if any
func (c *Client) PinnedVersion() (Version, bool) {
	return c.gate.Pinned()
}

// Host returns the gateway host this client talks to
func (c *Client) Host() string {
	return c.host
}

func (c *Client) getObject(ctx context.Context, path, category string) (map[string]any, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return asObject(body, category)
}
