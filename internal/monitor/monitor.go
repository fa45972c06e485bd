// Package monitor polls a running proxy's health endpoint.
package monitor

import (
	"context"
	"time"

	"github.com/firefly-engineering/keyrelay/internal/admin"
	"github.com/firefly-engineering/keyrelay/internal/logging"
)

// HealthChecker fetches one health report.
type HealthChecker interface {
	Health(ctx context.Context) (*admin.HealthReport, error)
}

// Sample is the outcome of a single health check.
type Sample struct {
	At      time.Time
	Latency time.Duration
	Report  *admin.HealthReport
	Err     error
}

// Healthy reports whether the check succeeded with a healthy status.
func (s Sample) Healthy() bool {
	return s.Err == nil && s.Report != nil && s.Report.Status == admin.StatusHealthy
}

// Monitor periodically checks the health of one proxy.
type Monitor struct {
	interval time.Duration
	checker  HealthChecker
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source used to stamp samples.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a new Monitor.
func New(interval time.Duration, checker HealthChecker, opts ...Option) *Monitor {
	m := &Monitor{
		interval: interval,
		checker:  checker,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the polling interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Check performs a single health check.
func (m *Monitor) Check(ctx context.Context) Sample {
	start := m.now()
	report, err := m.checker.Health(ctx)
	end := m.now()

	if err != nil {
		logging.Debug("health check failed", "error", err)
	}
	return Sample{
		At:      end,
		Latency: end.Sub(start),
		Report:  report,
		Err:     err,
	}
}

// Run checks immediately and then on every interval, passing each sample
// to fn. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, fn func(Sample)) error {
	logging.Debug("starting health monitor", "interval", m.interval)

	fn(m.Check(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("health monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			fn(m.Check(ctx))
		}
	}
}
