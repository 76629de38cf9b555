// Package logging provides structured logging for the Powerwall client and CLI.
//
// This package wraps a zap logger with a silent default so that programs
// embedding the client produce no output unless they opt in.
//
// # Log Levels
//
//   - Debug: request/response traces, version gate decisions
//   - Info: CLI lifecycle (login, logout, exporter start)
//   - Warn: recoverable issues (re-authentication in the exporter)
//   - Error: failures surfaced to the user
//
// # Configuration
//
// Initialize logging at program startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// or leave the level empty and set POWERWALL_LOG_LEVEL.
//
// # Request Logging
//
//	logging.LogRequest(l, "GET", "/api/status", true)
//	logging.LogResponse(l, "GET", "/api/status", 200, body)
//
// Request bodies are never logged; the login request carries the password.
package logging
