// Package metrics exposes search counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process. All methods are safe on a
// nil receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	attempts    prometheus.Counter
	hashRate    prometheus.Gauge
	rareMatches *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	writeErrors prometheus.Counter
	activeJobs  prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		attempts: f.NewCounter(prometheus.CounterOpts{
			Name: "vanity_attempts_total",
			Help: "Candidate keypairs generated and evaluated",
		}),
		hashRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "vanity_attempts_per_second",
			Help: "Attempt rate of the active job at the last progress report",
		}),
		rareMatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vanity_rare_matches_total",
			Help: "Rarity side finds by configured rule",
		}, []string{"rule"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vanity_jobs_total",
			Help: "Finished search jobs by outcome",
		}, []string{"outcome"}),
		writeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "vanity_output_write_errors_total",
			Help: "Protocol lines that could not be written",
		}),
		activeJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "vanity_active_jobs",
			Help: "1 while a search job is running",
		}),
	}
}

// AddAttempts adds n to the attempt counter.
func (m *Metrics) AddAttempts(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.attempts.Add(float64(n))
}

// SetRate records the current attempts per second.
func (m *Metrics) SetRate(rate float64) {
	if m == nil {
		return
	}
	m.hashRate.Set(rate)
}

// ObserveRare counts a rarity find for rule.
func (m *Metrics) ObserveRare(rule string) {
	if m == nil {
		return
	}
	m.rareMatches.WithLabelValues(rule).Inc()
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Set(1)
}

// JobFinished counts a job by outcome ("found", "cancelled" or "failed").
func (m *Metrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.activeJobs.Set(0)
	m.hashRate.Set(0)
	m.jobs.WithLabelValues(outcome).Inc()
}

// WriteError counts a dropped protocol line.
func (m *Metrics) WriteError() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
