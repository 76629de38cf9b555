package powerwall

// Enumerations used in requests and parsed out of responses. Every Parse
// function rejects values outside the known set with an unknown enum value
// error instead of passing them through.

// User is the login role sent as "username" in the login request
type User string

// Login roles accepted by /api/login/Basic
const (
	UserInstaller User = "installer"
	UserCustomer  User = "customer"
	UserEngineer  User = "engineer"
	UserKiosk     User = "kiosk"
	UserAdmin     User = "admin"
)

// Role is a role granted by a successful login
type Role string

// Roles returned in the login response
const (
	RoleHomeOwner        Role = "Home_Owner"
	RoleProviderEngineer Role = "Provider_Engineer"
	RoleInstaller        Role = "Installer"
)

// OperationMode is the battery operating mode reported by /api/operation
type OperationMode string

// Operating modes
const (
	OperationModeBackup          OperationMode = "backup"
	OperationModeSelfConsumption OperationMode = "self_consumption"
	OperationModeAutonomous      OperationMode = "autonomous"
	OperationModeScheduler       OperationMode = "scheduler"
	OperationModeSiteControl     OperationMode = "site_control"
)

// GridStatus is the grid connection state reported by /api/system_status/grid_status
type GridStatus string

// Grid connection states
const (
	GridStatusConnected        GridStatus = "SystemGridConnected"
	GridStatusIslandedReady    GridStatus = "SystemIslandedReady"
	GridStatusIslanded         GridStatus = "SystemIslandedActive"
	GridStatusTransitionToGrid GridStatus = "SystemTransitionToGrid"
)

// DeviceType is the gateway hardware category
type DeviceType string

// Gateway hardware categories
const (
	DeviceTypeGW1 DeviceType = "hec" // Backup Gateway 1
	DeviceTypeGW2 DeviceType = "teg" // Backup Gateway 2
	DeviceTypeSMC DeviceType = "smc" // Powerwall 2 AC without gateway
)

// SiteMasterStatus is the site controller state reported by /api/sitemaster
type SiteMasterStatus string

// Site controller states
const (
	SiteMasterStatusUp   SiteMasterStatus = "StatusUp"
	SiteMasterStatusDown SiteMasterStatus = "StatusDown"
)

// MeterType names an entry of /api/meters/aggregates
type MeterType string

// Meter entries
const (
	MeterTypeSolar     MeterType = "solar"
	MeterTypeSite      MeterType = "site"
	MeterTypeBattery   MeterType = "battery"
	MeterTypeLoad      MeterType = "load"
	MeterTypeBusway    MeterType = "busway"
	MeterTypeFrequency MeterType = "frequency"
	MeterTypeGenerator MeterType = "generator"
)

// SyncType is the gateway synchronisation protocol reported by /api/status
type SyncType string

// Synchronisation protocols
const (
	SyncTypeV1  SyncType = "v1"
	SyncTypeV2  SyncType = "v2"
	SyncTypeV21 SyncType = "v2.1"
)

var (
	knownUsers          = []User{UserInstaller, UserCustomer, UserEngineer, UserKiosk, UserAdmin}
	knownRoles          = []Role{RoleHomeOwner, RoleProviderEngineer, RoleInstaller}
	knownOperationModes = []OperationMode{
		OperationModeBackup, OperationModeSelfConsumption, OperationModeAutonomous,
		OperationModeScheduler, OperationModeSiteControl,
	}
	knownGridStatuses = []GridStatus{
		GridStatusConnected, GridStatusIslandedReady, GridStatusIslanded, GridStatusTransitionToGrid,
	}
	knownDeviceTypes        = []DeviceType{DeviceTypeGW1, DeviceTypeGW2, DeviceTypeSMC}
	knownSiteMasterStatuses = []SiteMasterStatus{SiteMasterStatusUp, SiteMasterStatusDown}
	knownMeterTypes         = []MeterType{
		MeterTypeSolar, MeterTypeSite, MeterTypeBattery, MeterTypeLoad,
		MeterTypeBusway, MeterTypeFrequency, MeterTypeGenerator,
	}
	knownSyncTypes = []SyncType{SyncTypeV1, SyncTypeV2, SyncTypeV21}
)

// SupportedOperationModes are the modes a customer may select
var SupportedOperationModes = []OperationMode{
	OperationModeBackup, OperationModeSelfConsumption, OperationModeAutonomous,
}

func parseEnum[T ~string](name, raw string, known []T) (T, error) {
	for _, k := range known {
		if string(k) == raw {
			return k, nil
		}
	}
	var zero T
	return zero, newUnknownEnumValueError(name, raw)
}

// ParseUser parses a login role
func ParseUser(s string) (User, error) { return parseEnum("user", s, knownUsers) }

// ParseRole parses a role granted by login
func ParseRole(s string) (Role, error) { return parseEnum("role", s, knownRoles) }

// ParseOperationMode parses the real_mode of /api/operation
func ParseOperationMode(s string) (OperationMode, error) {
	return parseEnum("operation mode", s, knownOperationModes)
}

// ParseGridStatus parses a grid connection state
func ParseGridStatus(s string) (GridStatus, error) {
	return parseEnum("grid status", s, knownGridStatuses)
}

// ParseDeviceType parses a gateway hardware category
func ParseDeviceType(s string) (DeviceType, error) {
	return parseEnum("device type", s, knownDeviceTypes)
}

// ParseSiteMasterStatus parses a site controller state
func ParseSiteMasterStatus(s string) (SiteMasterStatus, error) {
	return parseEnum("site master status", s, knownSiteMasterStatuses)
}

// ParseMeterType parses a meter entry name
func ParseMeterType(s string) (MeterType, error) {
	return parseEnum("meter type", s, knownMeterTypes)
}

// ParseSyncType parses a synchronisation protocol
func ParseSyncType(s string) (SyncType, error) {
	return parseEnum("sync type", s, knownSyncTypes)
}

// String returns a display name for the device type
func (d DeviceType) String() string {
	switch d {
	case DeviceTypeGW1:
		return "Gateway 1"
	case DeviceTypeGW2:
		return "Gateway 2"
	case DeviceTypeSMC:
		return "Powerwall 2 (SMC)"
	default:
		return string(d)
	}
}
