package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/firefly-engineering/keyrelay/internal/keys"
	"github.com/firefly-engineering/keyrelay/internal/metrics"
)

// Status represents the health status of the proxy
type Status string

const (
	// StatusHealthy is reported whenever the process is serving.
	StatusHealthy Status = "healthy"
)

// KeyState is the part of the key store the management endpoints use.
type KeyState interface {
	Status() keys.Status
	Rotate() (keys.Rotation, error)
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status            Status `json:"status"`
	APIKeysConfigured int    `json:"apiKeysConfigured"`
	CurrentKeyIndex   int    `json:"currentKeyIndex"`
}

// ErrorBody is the body of a failed management call.
type ErrorBody struct {
	Error string `json:"error"`
}

// Handlers serves /health and /rotate-key.
type Handlers struct {
	keys    KeyState
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithMetrics records manual rotations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithLogger sets the logger for management events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// New creates management handlers over state.
func New(state KeyState, opts ...Option) *Handlers {
	h := &Handlers{
		keys:   state,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health reports the key count and cursor.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	st := h.keys.Status()
	writeJSON(w, http.StatusOK, HealthReport{
		Status:            StatusHealthy,
		APIKeysConfigured: st.Count,
		CurrentKeyIndex:   st.Cursor,
	})
}

// Register mounts the management routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/rotate-key", h.RotateKey)
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	allow := methods[0]
	for _, m := range methods[1:] {
		allow += ", " + m
	}
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
