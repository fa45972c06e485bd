package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/config"
	"github.com/firefly-engineering/keyrelay/internal/keys"
	"github.com/firefly-engineering/keyrelay/internal/logging"
	"github.com/firefly-engineering/keyrelay/internal/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy server",
	Long: `Run an HTTP proxy that forwards requests to the upstream API, rotating
through the configured API keys one request at a time.

Keys are read once at startup:
  1. GEMINI_API_KEYS, a comma-separated list, if it is set and non-empty
  2. Otherwise the key file (--keys-file), JSON, TOML or YAML

Routes:
  <prefix>/...   forwarded upstream with the next key
  /health        key count and cursor
  /rotate-key    advance the cursor without forwarding
  /metrics       Prometheus metrics (unless --metrics=false)

Flags override the matching environment variables (PORT,
KEYRELAY_KEYS_FILE, KEYRELAY_TARGET, KEYRELAY_PREFIX, KEYRELAY_AUDIT_LOG).`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveFlags struct {
	host            string
	port            int
	target          string
	prefix          string
	keysFile        string
	upstreamTimeout time.Duration
	shutdownTimeout time.Duration
	auditLog        string
	metrics         bool
}

func init() {
	d := config.Default()
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.host, "host", d.Host, "Interface to listen on (default all)")
	f.IntVarP(&serveFlags.port, "port", "p", d.Port, "Port to listen on")
	f.StringVar(&serveFlags.target, "target", d.Target, "Upstream API origin")
	f.StringVar(&serveFlags.prefix, "prefix", d.Prefix, "Path prefix forwarded upstream")
	f.StringVar(&serveFlags.keysFile, "keys-file", d.KeysFile, "Key file used when GEMINI_API_KEYS is unset")
	f.DurationVar(&serveFlags.upstreamTimeout, "upstream-timeout", d.UpstreamTimeout, "Max wait for upstream response headers (0 = no limit)")
	f.DurationVar(&serveFlags.shutdownTimeout, "shutdown-timeout", d.ShutdownTimeout, "Max time to drain in-flight requests on shutdown")
	f.StringVar(&serveFlags.auditLog, "audit-log", d.AuditLogPath, "Path to JSONL request audit log")
	f.BoolVar(&serveFlags.metrics, "metrics", d.Metrics, "Expose Prometheus metrics on /metrics")
	rootCmd.AddCommand(serveCmd)
}

// serveConfig resolves defaults, then environment, then explicitly set flags.
func serveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = serveFlags.host
	}
	if f.Changed("port") {
		cfg.Port = serveFlags.port
	}
	if f.Changed("target") {
		cfg.Target = serveFlags.target
	}
	if f.Changed("prefix") {
		cfg.Prefix = serveFlags.prefix
	}
	if f.Changed("keys-file") {
		cfg.KeysFile = serveFlags.keysFile
	}
	if f.Changed("audit-log") {
		cfg.AuditLogPath = serveFlags.auditLog
	}
	if f.Changed("metrics") {
		cfg.Metrics = serveFlags.metrics
	}
	if f.Changed("upstream-timeout") {
		cfg.UpstreamTimeout = serveFlags.upstreamTimeout
	}
	if f.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = serveFlags.shutdownTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	store, err := keys.Load(cfg.KeySource())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := proxy.NewServer(proxy.ServerOptions{
		Config:   cfg,
		Keys:     store,
		Logger:   logging.Logger,
		Registry: reg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logInfo("Starting keyrelay on %s", cfg.ListenAddr())
	logInfo("Target: %s%s", cfg.Target, cfg.Prefix)
	switch store.Origin() {
	case keys.OriginEnv:
		logInfo("API keys: %d from %s", store.Len(), keys.EnvVar)
	case keys.OriginFile:
		logInfo("API keys: %d from %s", store.Len(), cfg.KeysFile)
	}
	if store.Len() == 0 {
		logWarning("No API keys configured; proxied requests will fail (set %s or create %s)", keys.EnvVar, cfg.KeysFile)
	}
	if cfg.AuditLogPath != "" {
		logInfo("Audit log: %s", cfg.AuditLogPath)
	}

	return server.Run(ctx)
}
