package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/firefly-engineering/keyrelay/internal/audit"
	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/metrics"
)

// Config holds proxy configuration
type Config struct {
	// TargetURL is the upstream origin (e.g., "https://generativelanguage.googleapis.com")
	TargetURL string

	// Keys supplies one credential per forwarded request
	Keys KeySelector

	// UpstreamTimeout bounds the wait for upstream response headers (0 = wait indefinitely)
	UpstreamTimeout time.Duration

	// Logger for proxy operations
	Logger *slog.Logger

	// Transport is an optional HTTP transport for the reverse proxy.
	// Used in tests to supply a TLS-aware transport for test servers.
	Transport http.RoundTripper

	// Metrics records request outcomes (nil = disabled)
	Metrics *metrics.Metrics

	// AuditLog records one entry per request (nil = disabled)
	AuditLog *audit.Logger
}

// Proxy forwards requests to the upstream with a rotated credential attached.
type Proxy struct {
	config       *Config
	translator   *Translator
	reverseProxy *httputil.ReverseProxy
}

type outboundKey struct{}

// New creates a new proxy instance
func New(cfg *Config) (*Proxy, error) {
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, errors.ConfigError("invalid target URL", err)
	}
	if target.Host == "" {
		return nil, errors.ValidationError(fmt.Sprintf("target URL %q has no host", cfg.TargetURL))
	}

	// Keys travel in the query string or Authorization header, so plaintext
	// is only accepted for a local upstream.
	switch target.Scheme {
	case "https":
	case "http":
		if !isLoopbackHost(target.Hostname()) {
			return nil, errors.ValidationError(fmt.Sprintf("proxy target must use HTTPS (got %q) unless it is a loopback address", cfg.TargetURL))
		}
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported target scheme %q", target.Scheme))
	}

	if cfg.Keys == nil {
		return nil, errors.ValidationError("proxy requires a key selector")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Proxy{
		config:     cfg,
		translator: NewTranslator(target, cfg.Keys, cfg.Logger),
	}

	p.reverseProxy = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      p.transport(),
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
		// Streamed responses are relayed as they arrive.
		FlushInterval: -1,
		ErrorLog:      slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
	}

	return p, nil
}

func (p *Proxy) transport() http.RoundTripper {
	if p.config.Transport != nil {
		return p.config.Transport
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = p.config.UpstreamTimeout
	return t
}

// ServeHTTP implements http.Handler
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	out, err := p.translator.Translate(r)
	if err != nil {
		p.config.Logger.Error("cannot forward request", "error", err, "path", r.URL.Path)
		lw.err = err
		writeError(lw, errors.HTTPStatus(err), errorType(err), err.Error())
		p.record(startTime, r, nil, lw)
		return
	}

	p.config.Logger.Debug("proxy request",
		"method", r.Method,
		"path", r.URL.Path,
		"placement", out.Placement,
		"credential", out.Credential,
		"remote", r.RemoteAddr)

	ctx := context.WithValue(r.Context(), outboundKey{}, out)
	p.reverseProxy.ServeHTTP(lw, r.WithContext(ctx))

	p.record(startTime, r, out, lw)
}

// rewrite replaces the outbound request wholesale with the translated one.
// Client X-Forwarded-* headers survive because the header map is replaced.
func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	out, ok := pr.In.Context().Value(outboundKey{}).(*Outbound)
	if !ok {
		return
	}
	out.Apply(pr.Out)
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	// The relay re-frames the body itself.
	resp.Header.Del("Transfer-Encoding")
	return nil
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	relayErr := errors.UpstreamTransport(err)
	p.config.Logger.Error("proxy error", "error", err, "path", r.URL.Path)
	p.config.Metrics.UpstreamError()
	if lw, ok := w.(*loggingResponseWriter); ok {
		lw.err = relayErr
	}
	writeError(w, http.StatusInternalServerError, "proxy_error", err.Error())
}

func (p *Proxy) record(start time.Time, r *http.Request, out *Outbound, lw *loggingResponseWriter) {
	duration := time.Since(start)

	placement := PlacementFor(r.URL.Path)
	keyIndex := -1
	size := r.ContentLength
	if out != nil {
		placement = out.Placement
		keyIndex = out.Credential.Index
		size = int64(len(out.Body))
	}

	p.config.Metrics.ObserveRequest(string(placement), lw.statusCode, duration)

	if p.config.AuditLog == nil {
		return
	}
	entry := audit.Entry{
		Timestamp:   start,
		Duration:    duration,
		Method:      r.Method,
		Path:        r.URL.Path,
		Placement:   string(placement),
		KeyIndex:    keyIndex,
		StatusCode:  lw.statusCode,
		RequestSize: size,
		RemoteAddr:  r.RemoteAddr,
	}
	if lw.err != nil {
		entry.Error = lw.err.Error()
	}
	p.config.AuditLog.Log(entry)
}

// errorType names the error class in relay-generated JSON bodies.
func errorType(err error) string {
	switch errors.KindOf(err) {
	case errors.KindCredentialsExhausted, errors.KindNoCredentials:
		return "configuration_error"
	default:
		return "proxy_error"
	}
}

type errorPayload struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// writeError sends {"error":{"type":...,"message":...}} with the given status.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorPayload{Error: errorDetail{Type: errType, Message: message}})
}

// isLoopbackHost reports whether host is localhost or a loopback IP literal.
func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	err         error
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	if !lw.wroteHeader {
		lw.statusCode = code
		lw.wroteHeader = true
	}
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	lw.wroteHeader = true
	return lw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying Flusher.
func (lw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}
