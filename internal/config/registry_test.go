package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "powerwall") {
		t.Errorf("GetConfigDir() = %v, should contain 'powerwall'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != filepath.Join("/tmp/xdg", "powerwall") {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/powerwall", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	t.Setenv(ConfigPathEnvVar, "/etc/powerwall.yaml")
	configPath, err = GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if configPath != "/etc/powerwall.yaml" {
		t.Errorf("GetConfigPath() = %v, want override", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Gateways == nil {
		t.Error("NewRegistry().Gateways should not be nil")
	}
	if reg.Preferences == nil || reg.Preferences.OutputFormat != "detailed" {
		t.Errorf("NewRegistry().Preferences = %+v, want detailed output", reg.Preferences)
	}

	exporter := reg.ExporterSettings()
	if exporter.ListenAddress != ":9871" || exporter.MetricsPath != "/metrics" {
		t.Errorf("ExporterSettings() = %+v", exporter)
	}
}

func TestRegistryEnsureGateway(t *testing.T) {
	reg := NewRegistry()

	gw1 := reg.EnsureGateway("home")
	if gw1 == nil {
		t.Fatal("EnsureGateway() returned nil")
	}

	if gw2 := reg.EnsureGateway("home"); gw1 != gw2 {
		t.Error("EnsureGateway() should return same instance for same name")
	}

	if gw3 := reg.EnsureGateway("cabin"); gw1 == gw3 {
		t.Error("EnsureGateway() should create new instance for different name")
	}

	names := reg.GatewayNames()
	if len(names) != 2 || names[0] != "cabin" || names[1] != "home" {
		t.Errorf("GatewayNames() = %v, want [cabin home]", names)
	}
}

func TestRegistryRemoveGateway(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureGateway("home").Host = "192.168.91.1"
	if err := reg.SetDefaultGateway("home"); err != nil {
		t.Fatalf("SetDefaultGateway() error = %v", err)
	}

	if !reg.RemoveGateway("home") {
		t.Error("RemoveGateway() should report removal")
	}
	if reg.Preferences.DefaultGateway != "" {
		t.Errorf("DefaultGateway = %q, should be cleared", reg.Preferences.DefaultGateway)
	}
	if reg.RemoveGateway("home") {
		t.Error("RemoveGateway() on a missing gateway should return false")
	}
}

func TestRegistryResolveGateway(t *testing.T) {
	reg := NewRegistry()

	if _, _, err := reg.ResolveGateway(""); err == nil {
		t.Error("ResolveGateway() on an empty registry should fail")
	}

	reg.EnsureGateway("home").Host = "192.168.91.1"

	// A single gateway is the implicit default
	name, gw, err := reg.ResolveGateway("")
	if err != nil || name != "home" || gw.Host != "192.168.91.1" {
		t.Errorf("ResolveGateway(\"\") = %q, %+v, %v", name, gw, err)
	}

	reg.EnsureGateway("cabin").Host = "10.0.0.5"
	if _, _, err := reg.ResolveGateway(""); err == nil {
		t.Error("ResolveGateway() with two gateways and no default should fail")
	}

	if err := reg.SetDefaultGateway("cabin"); err != nil {
		t.Fatalf("SetDefaultGateway() error = %v", err)
	}
	if name, _, _ := reg.ResolveGateway(""); name != "cabin" {
		t.Errorf("ResolveGateway(\"\") = %q, want cabin", name)
	}

	if _, _, err := reg.ResolveGateway("garage"); err == nil {
		t.Error("ResolveGateway() on an unknown name should fail")
	}
	if err := reg.SetDefaultGateway("garage"); err == nil {
		t.Error("SetDefaultGateway() on an unknown name should fail")
	}
}

func TestRegistryUpdateGatewaySeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateGatewaySeen("home", "21.44.1")
	after := time.Now()

	gw := reg.GetGateway("home")
	if gw == nil {
		t.Fatal("Gateway should exist after UpdateGatewaySeen()")
	}
	if gw.LastVersion != "21.44.1" {
		t.Errorf("LastVersion = %v, want 21.44.1", gw.LastVersion)
	}
	if gw.LastSeen.Before(before) || gw.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", gw.LastSeen, before, after)
	}

	// An empty version keeps the previous one
	reg.UpdateGatewaySeen("home", "")
	if gw.LastVersion != "21.44.1" {
		t.Errorf("LastVersion = %v, want 21.44.1", gw.LastVersion)
	}
}

func TestGatewayTimeoutDuration(t *testing.T) {
	gw := &Gateway{}
	if d, err := gw.TimeoutDuration(10 * time.Second); err != nil || d != 10*time.Second {
		t.Errorf("TimeoutDuration() = %v, %v; want fallback", d, err)
	}

	gw.Timeout = "3s"
	if d, err := gw.TimeoutDuration(10 * time.Second); err != nil || d != 3*time.Second {
		t.Errorf("TimeoutDuration() = %v, %v; want 3s", d, err)
	}

	gw.Timeout = "soon"
	if _, err := gw.TimeoutDuration(10 * time.Second); err == nil {
		t.Error("TimeoutDuration() should reject malformed durations")
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	gw := reg.EnsureGateway("home")
	gw.Host = "192.168.91.1"
	gw.Email = "me@example.com"
	gw.User = "customer"
	gw.Timeout = "5s"
	gw.PinnedVersion = "21.44.1"
	if err := reg.SetDefaultGateway("home"); err != nil {
		t.Fatalf("SetDefaultGateway() error = %v", err)
	}

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(strings.ToLower(string(data)), "password:") {
		t.Error("config file must not contain a password field")
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}

	got := loaded.GetGateway("home")
	if got == nil {
		t.Fatal("Gateway should exist in loaded registry")
	}
	if got.Host != "192.168.91.1" || got.Email != "me@example.com" || got.PinnedVersion != "21.44.1" {
		t.Errorf("loaded gateway = %+v", got)
	}
	if loaded.Preferences.DefaultGateway != "home" {
		t.Errorf("DefaultGateway = %q, want home", loaded.Preferences.DefaultGateway)
	}
}

func TestLoadRegistryFrom_Missing(t *testing.T) {
	reg, err := LoadRegistryFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if len(reg.Gateways) != 0 {
		t.Errorf("expected an empty registry, got %v", reg.Gateways)
	}
}

func TestLoadRegistryFrom_Invalid(t *testing.T) {
	dir := t.TempDir()

	badVersion := filepath.Join(dir, "v2.yaml")
	if err := os.WriteFile(badVersion, []byte("version: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryFrom(badVersion); err == nil {
		t.Error("LoadRegistryFrom() should reject unknown versions")
	}

	garbage := filepath.Join(dir, "garbage.yaml")
	if err := os.WriteFile(garbage, []byte("gateways: [unclosed\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryFrom(garbage); err == nil {
		t.Error("LoadRegistryFrom() should reject malformed YAML")
	}
}

func TestLoadRegistryFrom_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "version: 1\ngateways:\n  home:\n    host: 192.168.91.1\n"
	if err := os.WriteFile(path, []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if reg.Preferences == nil {
		t.Fatal("Preferences should be filled in")
	}
	if reg.GetGateway("home").Host != "192.168.91.1" {
		t.Errorf("Host = %q", reg.GetGateway("home").Host)
	}
}

func BenchmarkEnsureGateway(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureGateway("home")
	}
}
