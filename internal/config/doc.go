// Package config provides user configuration management for the powerwall CLI.
//
// This package manages a YAML-based configuration file that stores named
// gateways (host, login email and role, timeout, TLS verification, pinned
// firmware version) and application preferences such as the default gateway
// and the exporter listen address.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/powerwall/config.yaml or $HOME/.config/powerwall/config.yaml
//   - macOS: $HOME/.config/powerwall/config.yaml
//   - Windows: %LOCALAPPDATA%\powerwall\config.yaml
//
// POWERWALL_CONFIG overrides the location.
//
// # Security
//
// IMPORTANT: This package NEVER stores gateway passwords.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gw := registry.EnsureGateway("home")
//	gw.Host = "192.168.91.1"
//	gw.Email = "me@example.com"
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
