// Package ui provides terminal UI components for the powerwall CLI.
//
// One-shot commands render through a Printer:
//
//   - Header: command banner showing the gateway and firmware
//   - Result: success/failure/warning boxes with ordered details
//   - Confirm: yes/no prompt before commands that change gateway state
//
// The watch command runs WatchModel, a Bubble Tea program that polls the
// gateway on an interval and shows charge and power flow until the user quits.
//
// # Logging Integration
//
// This package expects logging to be controlled via the POWERWALL_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly.
package ui
