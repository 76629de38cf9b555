package config

import (
	"fmt"
	"sort"
	"time"
)

// Registry represents the entire user configuration file.
// It stores the gateways the CLI knows about and application preferences.
type Registry struct {
	Version     int                 `yaml:"version"`
	Gateways    map[string]*Gateway `yaml:"gateways,omitempty"` // Keyed by user-chosen gateway name
	Preferences *Preferences        `yaml:"preferences,omitempty"`
}

// Gateway represents connection settings for a single Backup Gateway.
// Passwords are NEVER stored; the CLI reads them from the environment or a prompt.
type Gateway struct {
	Host          string    `yaml:"host" json:"host"`                                         // IP address or hostname
	Email         string    `yaml:"email,omitempty" json:"email,omitempty"`                   // Login email
	User          string    `yaml:"user,omitempty" json:"user,omitempty"`                     // Login role (customer, installer, ...)
	Timeout       string    `yaml:"timeout,omitempty" json:"timeout,omitempty"`               // Per-request timeout as a Go duration
	VerifyTLS     bool      `yaml:"verify_tls,omitempty" json:"verify_tls,omitempty"`         // Verify the gateway certificate
	PinnedVersion string    `yaml:"pinned_version,omitempty" json:"pinned_version,omitempty"` // Firmware version to pin instead of probing
	LastVersion   string    `yaml:"last_version,omitempty" json:"last_version,omitempty"`     // Firmware version seen on the last connection
	LastSeen      time.Time `yaml:"last_seen,omitempty" json:"last_seen,omitempty"`           // Last successful connection time
}

// TimeoutDuration parses Timeout, returning fallback when it is unset.
func (g *Gateway) TimeoutDuration(fallback time.Duration) (time.Duration, error) {
	if g.Timeout == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", g.Timeout, err)
	}
	return d, nil
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DefaultGateway string         `yaml:"default_gateway,omitempty"` // Gateway used when --gateway is not given
	OutputFormat   string         `yaml:"output_format,omitempty"`   // detailed or json
	Exporter       *ExporterPrefs `yaml:"exporter,omitempty"`
}

// ExporterPrefs configures the Prometheus exporter.
type ExporterPrefs struct {
	ListenAddress string `yaml:"listen_address"` // e.g. ":9871"
	MetricsPath   string `yaml:"metrics_path"`   // e.g. "/metrics"
}

const (
	defaultOutputFormat  = "detailed"
	defaultListenAddress = ":9871"
	defaultMetricsPath   = "/metrics"
)

func defaultPreferences() *Preferences {
	return &Preferences{
		OutputFormat: defaultOutputFormat,
		Exporter: &ExporterPrefs{
			ListenAddress: defaultListenAddress,
			MetricsPath:   defaultMetricsPath,
		},
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Gateways:    make(map[string]*Gateway),
		Preferences: defaultPreferences(),
	}
}

// GetGateway retrieves gateway settings by name.
// Returns nil if the gateway doesn't exist in the registry.
func (r *Registry) GetGateway(name string) *Gateway {
	return r.Gateways[name]
}

// EnsureGateway ensures a gateway entry exists in the registry.
// Returns the entry (existing or newly created).
func (r *Registry) EnsureGateway(name string) *Gateway {
	if r.Gateways == nil {
		r.Gateways = make(map[string]*Gateway)
	}

	if gw, exists := r.Gateways[name]; exists {
		return gw
	}

	gw := &Gateway{}
	r.Gateways[name] = gw
	return gw
}

// RemoveGateway deletes a gateway and clears the default if it pointed there.
// Returns false if the gateway did not exist.
func (r *Registry) RemoveGateway(name string) bool {
	if _, exists := r.Gateways[name]; !exists {
		return false
	}
	delete(r.Gateways, name)
	if r.Preferences != nil && r.Preferences.DefaultGateway == name {
		r.Preferences.DefaultGateway = ""
	}
	return true
}

// SetDefaultGateway marks an existing gateway as the default.
func (r *Registry) SetDefaultGateway(name string) error {
	if r.GetGateway(name) == nil {
		return fmt.Errorf("unknown gateway %q", name)
	}
	if r.Preferences == nil {
		r.Preferences = defaultPreferences()
	}
	r.Preferences.DefaultGateway = name
	return nil
}

// ResolveGateway returns the named gateway, or the default one when name is empty.
// A registry with a single gateway uses it as the implicit default.
func (r *Registry) ResolveGateway(name string) (string, *Gateway, error) {
	if name == "" && r.Preferences != nil {
		name = r.Preferences.DefaultGateway
	}
	if name == "" && len(r.Gateways) == 1 {
		for only := range r.Gateways {
			name = only
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("no gateway given and no default gateway configured")
	}

	gw := r.GetGateway(name)
	if gw == nil {
		return "", nil, fmt.Errorf("unknown gateway %q", name)
	}
	return name, gw, nil
}

// UpdateGatewaySeen records a successful connection and the firmware version seen.
func (r *Registry) UpdateGatewaySeen(name, version string) {
	gw := r.EnsureGateway(name)
	gw.LastSeen = time.Now()
	if version != "" {
		gw.LastVersion = version
	}
}

// GatewayNames returns the gateway names in sorted order.
func (r *Registry) GatewayNames() []string {
	names := make([]string, 0, len(r.Gateways))
	for name := range r.Gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExporterSettings returns the exporter preferences with defaults filled in.
func (r *Registry) ExporterSettings() ExporterPrefs {
	prefs := ExporterPrefs{ListenAddress: defaultListenAddress, MetricsPath: defaultMetricsPath}
	if r.Preferences == nil || r.Preferences.Exporter == nil {
		return prefs
	}
	if r.Preferences.Exporter.ListenAddress != "" {
		prefs.ListenAddress = r.Preferences.Exporter.ListenAddress
	}
	if r.Preferences.Exporter.MetricsPath != "" {
		prefs.MetricsPath = r.Preferences.Exporter.MetricsPath
	}
	return prefs
}
