package powerwall

import (
	"time"
)

// Layout of the start_time member of /api/status
const statusTimeLayout = "2006-01-02 15:04:05 -0700"

// response wraps a decoded JSON object. Accessors on the embedding types read
// attributes lazily, so a response is only rejected for the fields a caller
// actually asks for.
type response struct {
	raw      map[string]any
	category string
}

// Raw returns the decoded response object
func (r response) Raw() map[string]any {
	return r.raw
}

func (r response) str(key string) (string, error)    { return RequireString(r.raw, key, r.category) }
func (r response) float(key string) (float64, error) { return RequireFloat(r.raw, key, r.category) }
func (r response) boolean(key string) (bool, error)  { return RequireBool(r.raw, key, r.category) }

func (r response) time(key, layout string) (time.Time, error) {
	s, err := r.str(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, newInvalidAttributeError(r.category, key, "a timestamp", s)
	}
	return t, nil
}

// LoginResponse is the answer to a successful login
type LoginResponse struct{ response }

func (l *LoginResponse) Email() (string, error)     { return l.str("email") }
func (l *LoginResponse) FirstName() (string, error) { return l.str("firstname") }
func (l *LoginResponse) LastName() (string, error)  { return l.str("lastname") }
func (l *LoginResponse) Token() (string, error)     { return l.str("token") }
func (l *LoginResponse) Provider() (string, error)  { return l.str("provider") }

// IsFirstLogin reports whether the gateway still expects the first-login flow
func (l *LoginResponse) IsFirstLogin() (bool, error) { return l.boolean("first_login") }

// LoginTime returns the server side login timestamp
func (l *LoginResponse) LoginTime() (time.Time, error) { return l.time("loginTime", time.RFC3339Nano) }

// Roles returns the roles granted to the session
func (l *LoginResponse) Roles() ([]Role, error) {
	raw, err := RequireSlice(l.raw, "roles", l.category)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, newInvalidAttributeError(l.category, "roles", "a list of strings", r)
		}
		role, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// SiteMaster is the site controller state
type SiteMaster struct{ response }

func (s *SiteMaster) IsRunning() (bool, error)          { return s.boolean("running") }
func (s *SiteMaster) IsConnectedToTesla() (bool, error) { return s.boolean("connected_to_tesla") }
func (s *SiteMaster) IsPowerSupplyMode() (bool, error)  { return s.boolean("power_supply_mode") }

// Status returns the controller status
func (s *SiteMaster) Status() (SiteMasterStatus, error) {
	raw, err := s.str("status")
	if err != nil {
		return "", err
	}
	return ParseSiteMasterStatus(raw)
}

// SiteInfo is the site configuration.
// Newer firmware nests the grid settings in a grid_code object; the grid
// accessors read either shape.
type SiteInfo struct{ response }

func (s *SiteInfo) SiteName() (string, error) { return s.str("site_name") }
func (s *SiteInfo) Timezone() (string, error) { return s.str("timezone") }
func (s *SiteInfo) NominalSystemEnergy() (float64, error) {
	return s.float("nominal_system_energy_kWh")
}
func (s *SiteInfo) NominalSystemPower() (float64, error) { return s.float("nominal_system_power_kW") }
func (s *SiteInfo) MaxSiteMeterPower() (float64, error)  { return s.float("max_site_meter_power_kW") }
func (s *SiteInfo) MinSiteMeterPower() (float64, error)  { return s.float("min_site_meter_power_kW") }
func (s *SiteInfo) GridVoltageSetting() (float64, error) {
	return RequireFloat(s.gridContainer(), "grid_voltage_setting", s.category)
}
func (s *SiteInfo) GridFrequencySetting() (float64, error) {
	return RequireFloat(s.gridContainer(), "grid_freq_setting", s.category)
}
func (s *SiteInfo) Country() (string, error) {
	return RequireString(s.gridContainer(), "country", s.category)
}
func (s *SiteInfo) State() (string, error) {
	return RequireString(s.gridContainer(), "state", s.category)
}
func (s *SiteInfo) Region() (string, error) {
	return RequireString(s.gridContainer(), "region", s.category)
}
func (s *SiteInfo) Utility() (string, error) {
	return RequireString(s.gridContainer(), "utility", s.category)
}

// GridCode returns the grid code name
func (s *SiteInfo) GridCode() (string, error) {
	if nested, ok := s.raw["grid_code"].(map[string]any); ok {
		return RequireString(nested, "grid_code", s.category)
	}
	return s.str("grid_code")
}

func (s *SiteInfo) gridContainer() map[string]any {
	if nested, ok := s.raw["grid_code"].(map[string]any); ok {
		return nested
	}
	return s.raw
}

// PowerwallStatus is the gateway status from /api/status
type PowerwallStatus struct{ response }

func (p *PowerwallStatus) Version() (string, error) { return p.str("version") }
func (p *PowerwallStatus) GitHash() (string, error) { return p.str("git_hash") }
func (p *PowerwallStatus) IsNew() (bool, error)     { return p.boolean("is_new") }

// StartTime returns when the gateway last started
func (p *PowerwallStatus) StartTime() (time.Time, error) {
	return p.time("start_time", statusTimeLayout)
}

// UpTime returns how long the gateway has been running
func (p *PowerwallStatus) UpTime() (time.Duration, error) {
	s, err := p.str("up_time_seconds")
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, newInvalidAttributeError(p.category, "up_time_seconds", "a duration", s)
	}
	return d, nil
}

// CommissionCount returns how often the site was commissioned
func (p *PowerwallStatus) CommissionCount() (int, error) {
	return RequireInt(p.raw, "commission_count", p.category)
}

// DeviceType returns the device type; only present on firmware >= 1.46.0
func (p *PowerwallStatus) DeviceType() (DeviceType, error) {
	raw, err := p.str("device_type")
	if err != nil {
		return "", err
	}
	return ParseDeviceType(raw)
}

// SyncType returns the synchronisation protocol
func (p *PowerwallStatus) SyncType() (SyncType, error) {
	raw, err := p.str("sync_type")
	if err != nil {
		return "", err
	}
	return ParseSyncType(raw)
}

// ParsedVersion returns Version parsed for comparisons
func (p *PowerwallStatus) ParsedVersion() (Version, error) {
	raw, err := p.Version()
	if err != nil {
		return Version{}, err
	}
	return ParseVersion(raw)
}

// Solar is one entry of /api/solars
type Solar struct{ response }

func (s *Solar) Brand() (string, error)             { return s.str("brand") }
func (s *Solar) Model() (string, error)             { return s.str("model") }
func (s *Solar) PowerRatingWatts() (float64, error) { return s.float("power_rating_watts") }
