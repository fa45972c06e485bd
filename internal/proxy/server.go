package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/firefly-engineering/keyrelay/internal/admin"
	"github.com/firefly-engineering/keyrelay/internal/audit"
	"github.com/firefly-engineering/keyrelay/internal/config"
	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
	"github.com/firefly-engineering/keyrelay/internal/metrics"
)

// ServerOptions wires a Server together.
type ServerOptions struct {
	Config *config.Config
	Keys   *keys.Store
	Logger *slog.Logger

	// Registry receives the proxy metrics (nil = private registry)
	Registry *prometheus.Registry

	// Transport overrides the upstream transport, for tests.
	Transport http.RoundTripper
}

// Server is the HTTP front door: management routes, metrics and the
// proxied prefix behind one listener.
type Server struct {
	proxy           *Proxy
	server          *http.Server
	auditLog        *audit.Logger
	logger          *slog.Logger
	shutdownTimeout time.Duration
	faults          chan error
}

// NewServer builds the proxy and its routes. Nothing listens until Run or Serve.
func NewServer(opts ServerOptions) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Keys == nil {
		return nil, errors.ValidationError("server requires a key store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New(opts.Registry)
	m.SetCredentials(opts.Keys.Len())

	var auditLog *audit.Logger
	if cfg.AuditLogPath != "" {
		al, err := audit.Open(cfg.AuditLogPath, audit.WithLogger(logger))
		if err != nil {
			return nil, errors.ConfigError("failed to open audit log", err)
		}
		auditLog = al
	}

	p, err := New(&Config{
		TargetURL:       cfg.Target,
		Keys:            opts.Keys,
		UpstreamTimeout: cfg.UpstreamTimeout,
		Logger:          logger,
		Transport:       opts.Transport,
		Metrics:         m,
		AuditLog:        auditLog,
	})
	if err != nil {
		if auditLog != nil {
			_ = auditLog.Close()
		}
		return nil, err
	}

	s := &Server{
		proxy:           p,
		auditLog:        auditLog,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		faults:          make(chan error, 1),
	}

	mux := http.NewServeMux()
	admin.New(opts.Keys, admin.WithMetrics(m), admin.WithLogger(logger)).Register(mux)
	if cfg.Metrics {
		mux.Handle("/metrics", m.Handler())
	}

	s.server = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.recoverer(routePrefix(cfg.Prefix, p, mux)),
		ReadHeaderTimeout: 30 * time.Second,
		// No WriteTimeout: upstream generations can stream for minutes.
		IdleTimeout: 60 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return s, nil
}

// routePrefix sends the prefix and everything below it to p untouched and
// leaves the rest to mux. ServeMux would answer unclean paths such as
// "/v1beta//models" with a redirect instead of forwarding them.
func routePrefix(prefix string, p, mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == prefix || strings.HasPrefix(r.URL.Path, prefix+"/") {
			p.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// Handler returns the routed handler, including panic recovery.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Faults reports handler panics. A fault stops Run and Serve.
func (s *Server) Faults() <-chan error {
	return s.faults
}

// Run listens on the configured address and serves until ctx is done or a
// handler faults.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.closeAudit()
		return errors.ServeError(fmt.Sprintf("failed to listen on %s", s.server.Addr), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln. When ctx is cancelled in-flight requests get up to the
// shutdown timeout to finish. A handler fault triggers the same shutdown and
// is returned as an InternalFault error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("proxy listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.ServeError("proxy server failed", err)
		}
		return nil
	})

	g.Go(func() error {
		var fault error
		select {
		case <-gctx.Done():
		case fault = <-s.faults:
			s.logger.Error("internal fault, shutting down", "error", fault)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down proxy server")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown incomplete", "error", err)
			_ = s.server.Close()
		}
		return fault
	})

	err := g.Wait()
	s.closeAudit()
	return err
}

func (s *Server) closeAudit() {
	if s.auditLog == nil {
		return
	}
	if err := s.auditLog.Close(); err != nil {
		s.logger.Warn("failed to close audit log", "error", err)
	}
}

// recoverer turns a handler panic into a 500 and reports it as a fault.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err := errors.InternalFault(fmt.Errorf("panic serving %s: %v", r.URL.Path, v))
			s.logger.Error("handler panic", "error", err, "stack", string(debug.Stack()))
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			select {
			case s.faults <- err:
			default:
			}
		}()
		next.ServeHTTP(w, r)
	})
}
