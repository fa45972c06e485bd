// Package config provides the runtime configuration for keyrelay.
//
// Values are resolved in three layers: built-in defaults, environment
// variables (FromEnv), then command-line flags bound by the cmd package.
//
//	type Config struct {
//	    Host, Port      // listen address (PORT, default 8080)
//	    Target          // upstream origin (KEYRELAY_TARGET)
//	    Prefix          // proxied path prefix (KEYRELAY_PREFIX, default /v1beta)
//	    KeysFile        // structured key file (KEYRELAY_KEYS_FILE, default api-keys.json)
//	    UpstreamTimeout // 0 waits indefinitely for upstream headers
//	    ShutdownTimeout // drain window for in-flight requests
//	    AuditLogPath    // JSONL request log (KEYRELAY_AUDIT_LOG)
//	    Metrics         // expose /metrics
//	}
//
// The key list itself (GEMINI_API_KEYS) is read by the keys package through
// KeySource, so a present environment list always takes priority over
// KeysFile.
//
// # Validation
//
// Validate checks the port range, the target scheme and host, and that the
// prefix does not shadow /health, /rotate-key or /metrics.
package config
