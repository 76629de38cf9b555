package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/heathw/tesla-powerwall/pkg/powerwall"
)

// DefaultScrapeTimeout bounds the gateway requests made for one scrape
const DefaultScrapeTimeout = 15 * time.Second

// Credentials are used to log in again when the gateway drops the session
type Credentials struct {
	Email    string
	Password string
}

// Collector implements prometheus.Collector for one gateway.
//
// Every Collect reads the gateway through the client; the client is guarded
// by a mutex since concurrent scrapes would otherwise share its session.
type Collector struct {
	name    string
	creds   *Credentials
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	client *powerwall.Client

	// Metrics
	charge           *prometheus.Desc
	backupReserve    *prometheus.Desc
	meterPower       *prometheus.Desc
	meterImported    *prometheus.Desc
	meterExported    *prometheus.Desc
	meterFrequency   *prometheus.Desc
	gridConnected    *prometheus.Desc
	gridStatus       *prometheus.Desc
	sitemasterUp     *prometheus.Desc
	connectedToTesla *prometheus.Desc
	info             *prometheus.Desc
	scrapeSuccess    *prometheus.Desc
	scrapeDuration   *prometheus.Desc
}

// Option configures a Collector
type Option func(*Collector)

// WithCredentials enables logging in again after an access denied answer
func WithCredentials(email, password string) Option {
	return func(c *Collector) { c.creds = &Credentials{Email: email, Password: password} }
}

// WithScrapeTimeout overrides DefaultScrapeTimeout
func WithScrapeTimeout(d time.Duration) Option {
	return func(c *Collector) { c.timeout = d }
}

// WithLogger sets the logger used for scrape failures
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// NewCollector creates a collector reading the gateway behind client.
// name is exported as the gateway label.
func NewCollector(name string, client *powerwall.Client, opts ...Option) *Collector {
	gw := []string{"gateway"}
	meter := []string{"gateway", "meter"}

	c := &Collector{
		name:    name,
		client:  client,
		timeout: DefaultScrapeTimeout,
		logger:  zap.NewNop(),
		charge: prometheus.NewDesc(
			"powerwall_charge_percent",
			"Battery state of energy in percent",
			gw, nil,
		),
		backupReserve: prometheus.NewDesc(
			"powerwall_backup_reserve_percent",
			"Charge kept in reserve for grid outages in percent",
			gw, nil,
		),
		meterPower: prometheus.NewDesc(
			"powerwall_meter_instant_power_watts",
			"Instant power through the meter in watts",
			meter, nil,
		),
		meterImported: prometheus.NewDesc(
			"powerwall_meter_energy_imported_wh_total",
			"Energy imported through the meter in watt hours",
			meter, nil,
		),
		meterExported: prometheus.NewDesc(
			"powerwall_meter_energy_exported_wh_total",
			"Energy exported through the meter in watt hours",
			meter, nil,
		),
		meterFrequency: prometheus.NewDesc(
			"powerwall_meter_frequency_hertz",
			"Frequency measured by the meter",
			meter, nil,
		),
		gridConnected: prometheus.NewDesc(
			"powerwall_grid_connected",
			"Whether the site is connected to the grid (1=yes, 0=no)",
			gw, nil,
		),
		gridStatus: prometheus.NewDesc(
			"powerwall_grid_status",
			"Current grid status, the active status has value 1",
			[]string{"gateway", "status"}, nil,
		),
		sitemasterUp: prometheus.NewDesc(
			"powerwall_sitemaster_running",
			"Whether the site controller is running (1=yes, 0=no)",
			gw, nil,
		),
		connectedToTesla: prometheus.NewDesc(
			"powerwall_sitemaster_connected_to_tesla",
			"Whether the site controller is connected to Tesla (1=yes, 0=no)",
			gw, nil,
		),
		info: prometheus.NewDesc(
			"powerwall_info",
			"Gateway firmware and hardware information",
			[]string{"gateway", "version", "device_type", "site_name"}, nil,
		),
		scrapeSuccess: prometheus.NewDesc(
			"powerwall_scrape_success",
			"Whether scraping the gateway was successful",
			gw, nil,
		),
		scrapeDuration: prometheus.NewDesc(
			"powerwall_scrape_duration_seconds",
			"Time spent reading the gateway",
			gw, nil,
		),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.charge
	ch <- c.backupReserve
	ch <- c.meterPower
	ch <- c.meterImported
	ch <- c.meterExported
	ch <- c.meterFrequency
	ch <- c.gridConnected
	ch <- c.gridStatus
	ch <- c.sitemasterUp
	ch <- c.connectedToTesla
	ch <- c.info
	ch <- c.scrapeSuccess
	ch <- c.scrapeDuration
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	metrics, err := c.scrape(ctx)
	if err != nil && powerwall.IsAccessDenied(err) && c.creds != nil {
		c.logger.Warn("Gateway session rejected, logging in again",
			zap.String("gateway", c.name),
			zap.Error(err),
		)
		if _, loginErr := c.client.Login(ctx, c.creds.Email, c.creds.Password, false); loginErr != nil {
			err = loginErr
		} else {
			metrics, err = c.scrape(ctx)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.scrapeDuration, prometheus.GaugeValue, time.Since(start).Seconds(), c.name)

	if err != nil {
		c.logger.Error("Failed to scrape gateway",
			zap.String("gateway", c.name),
			zap.String("host", c.client.Host()),
			zap.Error(err),
		)
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0, c.name)
		return
	}

	for _, m := range metrics {
		ch <- m
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 1, c.name)
}

// scrape reads everything needed for one exposition. Any failure drops the
// whole scrape so partial readings never mix with a failed one.
func (c *Collector) scrape(ctx context.Context) ([]prometheus.Metric, error) {
	var out []prometheus.Metric
	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		out = append(out, prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...))
	}
	counter := func(desc *prometheus.Desc, v float64, labels ...string) {
		out = append(out, prometheus.MustNewConstMetric(desc, prometheus.CounterValue, v, labels...))
	}

	charge, err := c.client.GetCharge(ctx)
	if err != nil {
		return nil, err
	}
	gauge(c.charge, charge, c.name)

	reserve, err := c.client.GetBackupReservePercentage(ctx)
	if err != nil {
		return nil, err
	}
	gauge(c.backupReserve, reserve, c.name)

	aggregates, err := c.client.GetMeters(ctx)
	if err != nil {
		return nil, err
	}
	meters, err := aggregates.Meters()
	if err != nil {
		return nil, err
	}
	for _, m := range meters {
		label := string(m.Type)
		power, err := m.InstantPower()
		if err != nil {
			return nil, err
		}
		imported, err := m.RawEnergyImported()
		if err != nil {
			return nil, err
		}
		exported, err := m.RawEnergyExported()
		if err != nil {
			return nil, err
		}
		gauge(c.meterPower, power, c.name, label)
		counter(c.meterImported, imported, c.name, label)
		counter(c.meterExported, exported, c.name, label)

		// Not every firmware reports a frequency per meter
		if freq, err := m.Frequency(); err == nil {
			gauge(c.meterFrequency, freq, c.name, label)
		}
	}

	grid, err := c.client.GetGridStatus(ctx)
	if err != nil {
		return nil, err
	}
	gauge(c.gridConnected, boolToFloat(grid == powerwall.GridStatusConnected), c.name)
	for _, s := range []powerwall.GridStatus{
		powerwall.GridStatusConnected,
		powerwall.GridStatusIslandedReady,
		powerwall.GridStatusIslanded,
		powerwall.GridStatusTransitionToGrid,
	} {
		gauge(c.gridStatus, boolToFloat(grid == s), c.name, string(s))
	}

	sm, err := c.client.GetSiteMaster(ctx)
	if err != nil {
		return nil, err
	}
	running, err := sm.IsRunning()
	if err != nil {
		return nil, err
	}
	connected, err := sm.IsConnectedToTesla()
	if err != nil {
		return nil, err
	}
	gauge(c.sitemasterUp, boolToFloat(running), c.name)
	gauge(c.connectedToTesla, boolToFloat(connected), c.name)

	version, err := c.client.GetVersion(ctx)
	if err != nil {
		return nil, err
	}
	deviceType, err := c.client.GetDeviceType(ctx)
	if err != nil {
		return nil, err
	}
	siteName := ""
	if info, err := c.client.GetSiteInfo(ctx); err == nil {
		siteName, _ = info.SiteName()
	}
	gauge(c.info, 1, c.name, version, string(deviceType), siteName)

	return out, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
