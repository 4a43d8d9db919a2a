package miner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/screa/vanity-search/internal/config"
	"github.com/screa/vanity-search/internal/logger"
	"github.com/screa/vanity-search/internal/metrics"
	"github.com/screa/vanity-search/pkg/sink"
	"github.com/screa/vanity-search/pkg/types"
	"github.com/screa/vanity-search/pkg/worker"
)

const (
	// DefaultPollInterval is how often the coordinator checks on workers.
	DefaultPollInterval = 50 * time.Millisecond
	// DefaultReportInterval is the progress cadence.
	DefaultReportInterval = 250 * time.Millisecond
)

// ErrJobActive is returned by Run while another job is still running.
var ErrJobActive = errors.New("a search job is already running")

// Miner coordinates the worker pool for one search job at a time
type Miner struct {
	config  *config.Config
	logger  *logger.Logger
	sink    sink.Sink
	rareLog *sink.RareLog
	metrics *metrics.Metrics

	pollInterval   time.Duration
	reportInterval time.Duration
	newSource      func() (worker.SeedSource, error)

	running atomic.Bool
	mu      sync.Mutex
	active  *worker.SharedState
}

// Option adjusts a Miner
type Option func(*Miner)

// WithIntervals overrides the poll and progress intervals.
func WithIntervals(poll, report time.Duration) Option {
	return func(m *Miner) {
		m.pollInterval = poll
		m.reportInterval = report
	}
}

// WithSeedSource replaces the per-worker seed source.
func WithSeedSource(f func() (worker.SeedSource, error)) Option {
	return func(m *Miner) { m.newSource = f }
}

// NewMiner creates a new miner instance
func NewMiner(cfg *config.Config, out sink.Sink, rareLog *sink.RareLog, log *logger.Logger, met *metrics.Metrics, opts ...Option) *Miner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Discard()
	}
	m := &Miner{
		config:         cfg,
		logger:         log,
		sink:           out,
		rareLog:        rareLog,
		metrics:        met,
		pollInterval:   DefaultPollInterval,
		reportInterval: DefaultReportInterval,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run searches for job until a worker finds the prefix, Stop is called or
// ctx is cancelled. It returns only after every worker has exited. The
// error is non-nil only when a worker could not obtain randomness.
func (m *Miner) Run(ctx context.Context, job *types.SearchJob) (*types.Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrJobActive
	}
	defer m.running.Store(false)

	start := time.Now()
	n := m.config.Workers
	state := worker.NewSharedState(n)
	m.setActive(state)

	m.logger.Info("job started", "job", job.ID, "prefix", job.Prefix, "workers", n, "rules", len(job.Rules))
	m.metrics.JobStarted()

	workers := make([]*worker.Worker, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		w := worker.NewWorker(worker.Options{
			ID:        i,
			Job:       job,
			State:     state,
			Sink:      m.sink,
			RareLog:   m.rareLog,
			Logger:    m.logger,
			Metrics:   m.metrics,
			NewSource: m.newSource,
		})
		workers[i] = w
		g.Go(w.Run)
	}

	poll := time.NewTicker(m.pollInterval)
	defer poll.Stop()

	done := ctx.Done()
	lastReport := start
	var reported uint64
	for !allStopped(workers) {
		select {
		case <-done:
			state.Stop()
			done = nil
		case now := <-poll.C:
			if now.Sub(lastReport) >= m.reportInterval {
				reported = m.report(state, reported, now.Sub(start))
				lastReport = now
			}
		}
	}

	// a job may end by cancellation rather than a match
	state.Stop()
	err := g.Wait()

	elapsed := time.Since(start)
	total := m.report(state, reported, elapsed)
	result := &types.Result{
		JobID:    job.ID,
		Found:    state.Found(),
		Attempts: total,
		Duration: elapsed,
	}

	outcome := "cancelled"
	switch {
	case err != nil:
		outcome = "failed"
	case result.Found:
		outcome = "found"
	}
	m.metrics.JobFinished(outcome)
	m.logger.Info("job finished", "job", job.ID, "outcome", outcome, "attempts", total,
		"duration", elapsed.Round(time.Millisecond), "rate", rate(total, elapsed))

	if err != nil {
		m.logger.Error("worker failed", "job", job.ID, "err", err)
		return result, err
	}
	return result, nil
}

// Stop cancels the running job. It is a no-op when no job is running and
// may be called any number of times.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Stop()
	}
}

// Attempts returns the attempt total of the current or last job.
func (m *Miner) Attempts() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0
	}
	return m.active.Total()
}

func (m *Miner) setActive(s *worker.SharedState) {
	m.mu.Lock()
	m.active = s
	m.mu.Unlock()
}

// report emits a progress snapshot and returns the total it observed.
func (m *Miner) report(state *worker.SharedState, reported uint64, elapsed time.Duration) uint64 {
	var total uint64
	if m.config.PerWorkerProgress {
		for tid, n := range state.Snapshot() {
			total += n
			m.sink.Emit(types.ProgressEvent(tid, n))
		}
	} else {
		total = state.Total()
		m.sink.Emit(types.ProgressEvent(0, total))
	}
	if total > reported {
		m.metrics.AddAttempts(total - reported)
	}
	m.metrics.SetRate(rate(total, elapsed))
	return total
}

func allStopped(workers []*worker.Worker) bool {
	for _, w := range workers {
		if w.Status() != worker.Stopped {
			return false
		}
	}
	return true
}

func rate(attempts uint64, elapsed time.Duration) float64 {
	if elapsed.Seconds() <= 0 {
		return 0
	}
	return float64(attempts) / elapsed.Seconds()
}
