// Package logging provides logging utilities for keyrelay.
//
// This package provides two categories of output:
//   - Structured logs for the proxy and CLI (via slog)
//   - User output: formatted messages for CLI users
//
// # Structured Logging
//
// Logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("forwarding request", "path", path, "placement", placement)
//	logging.Warn("malformed request body", "content_type", ct)
//
// Attributes named authorization, api_key, apikey or secret are replaced
// with [REDACTED] before they reach the handler. Credentials themselves are
// logged through keys.Credential, which renders masked.
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Loaded %d API keys from %s", n, source)
//	logging.UserSuccess("Rotated to key %d", idx)
//	logging.UserWarning("No API keys configured")
//	logging.UserError("Failed to reach proxy: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
package logging
