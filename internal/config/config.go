package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
)

const (
	DefaultPort            = 8080
	DefaultTarget          = "https://generativelanguage.googleapis.com"
	DefaultPrefix          = "/v1beta"
	DefaultShutdownTimeout = 10 * time.Second

	// Environment variables consulted by FromEnv.
	EnvPort     = "PORT"
	EnvKeysFile = "KEYRELAY_KEYS_FILE"
	EnvTarget   = "KEYRELAY_TARGET"
	EnvPrefix   = "KEYRELAY_PREFIX"
	EnvAuditLog = "KEYRELAY_AUDIT_LOG"
)

// reservedPrefixes collide with the management and metrics routes.
var reservedPrefixes = map[string]bool{
	"/":           true,
	"/health":     true,
	"/rotate-key": true,
	"/metrics":    true,
}

// Config holds everything the proxy needs at startup
type Config struct {
	// Host is the interface to bind (empty = all interfaces)
	Host string

	// Port is the TCP port to listen on
	Port int

	// Target is the upstream origin, e.g. "https://generativelanguage.googleapis.com"
	Target string

	// Prefix is the path prefix that is proxied upstream verbatim
	Prefix string

	// KeysFile is the structured key file, consulted when GEMINI_API_KEYS is unset
	KeysFile string

	// UpstreamTimeout bounds the wait for upstream response headers (0 = wait indefinitely)
	UpstreamTimeout time.Duration

	// ShutdownTimeout bounds how long in-flight requests may drain on shutdown
	ShutdownTimeout time.Duration

	// AuditLogPath is the JSONL request audit log (empty = disabled)
	AuditLogPath string

	// Metrics exposes Prometheus metrics on /metrics
	Metrics bool
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		Target:          DefaultTarget,
		Prefix:          DefaultPrefix,
		KeysFile:        keys.DefaultFile,
		ShutdownTimeout: DefaultShutdownTimeout,
		Metrics:         true,
	}
}

// FromEnv returns Default overlaid with any environment overrides.
// Unset or empty variables leave the default in place.
func FromEnv() (*Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("invalid %s %q", EnvPort, v), err)
		}
		cfg.Port = port
	}
	if v := os.Getenv(EnvKeysFile); v != "" {
		cfg.KeysFile = v
	}
	if v := os.Getenv(EnvTarget); v != "" {
		cfg.Target = v
	}
	if v := os.Getenv(EnvPrefix); v != "" {
		cfg.Prefix = v
	}
	if v := os.Getenv(EnvAuditLog); v != "" {
		cfg.AuditLogPath = v
	}

	return cfg, nil
}

// Validate checks that the Config is valid and normalizes the prefix.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.ValidationError(fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	if _, err := c.TargetURL(); err != nil {
		return err
	}

	if !strings.HasPrefix(c.Prefix, "/") {
		return errors.ValidationError(fmt.Sprintf("invalid prefix %q: must start with /", c.Prefix))
	}
	if len(c.Prefix) > 1 {
		c.Prefix = strings.TrimRight(c.Prefix, "/")
		if c.Prefix == "" {
			c.Prefix = "/"
		}
	}
	if reservedPrefixes[c.Prefix] {
		return errors.ValidationError(fmt.Sprintf("invalid prefix %q: collides with a management route", c.Prefix))
	}

	if c.UpstreamTimeout < 0 {
		return errors.ValidationError("upstream timeout cannot be negative")
	}
	if c.ShutdownTimeout < 0 {
		return errors.ValidationError("shutdown timeout cannot be negative")
	}

	return nil
}

// TargetURL parses Target and checks it names an http(s) origin.
func (c *Config) TargetURL() (*url.URL, error) {
	u, err := url.Parse(c.Target)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid target URL %q", c.Target), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.ValidationError(fmt.Sprintf("invalid target URL %q: scheme must be http or https", c.Target))
	}
	if u.Host == "" {
		return nil, errors.ValidationError(fmt.Sprintf("invalid target URL %q: missing host", c.Target))
	}
	return u, nil
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// KeySource returns where the key store should be loaded from.
func (c *Config) KeySource() keys.Source {
	return keys.SourceFromEnv(c.KeysFile)
}
