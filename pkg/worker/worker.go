package worker

import (
	"sync/atomic"

	"github.com/screa/vanity-search/internal/crypto"
	"github.com/screa/vanity-search/internal/logger"
	"github.com/screa/vanity-search/internal/metrics"
	"github.com/screa/vanity-search/pkg/pattern"
	"github.com/screa/vanity-search/pkg/sink"
	"github.com/screa/vanity-search/pkg/types"
)

// Status is the lifecycle state of a worker
type Status int32

const (
	Running Status = iota
	Stopped
)

// SeedSource yields candidate seeds. *crypto.KeySource implements it.
type SeedSource interface {
	Next(seed *[crypto.SeedLen]byte) error
}

// Options configures a worker. Job, State and Sink are required.
type Options struct {
	ID      int
	Job     *types.SearchJob
	State   *SharedState
	Sink    sink.Sink
	RareLog *sink.RareLog
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// NewSource overrides the seed source; defaults to crypto.NewKeySource.
	NewSource func() (SeedSource, error)
}

// Worker handles address generation and matching for one goroutine
type Worker struct {
	opts   Options
	status atomic.Int32

	// Pre-allocated buffer for performance
	seed [crypto.SeedLen]byte
}

// NewWorker creates a new worker instance
func NewWorker(opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.NewSource == nil {
		opts.NewSource = func() (SeedSource, error) { return crypto.NewKeySource() }
	}
	return &Worker{opts: opts}
}

// Status returns the worker's lifecycle state
func (w *Worker) Status() Status {
	return Status(w.status.Load())
}

// Run generates and checks candidates until the stop flag is set or this
// worker finds the prefix. It only returns an error when the seed source
// fails.
func (w *Worker) Run() error {
	defer w.status.Store(int32(Stopped))

	src, err := w.opts.NewSource()
	if err != nil {
		return err
	}
	for !w.opts.State.Stopped() {
		if err := src.Next(&w.seed); err != nil {
			return err
		}
		if w.Check(&w.seed) {
			return nil
		}
	}
	return nil
}

// Check runs one attempt for seed and reports whether it matched the job's
// prefix. A prefix match raises the stop flag.
func (w *Worker) Check(seed *[crypto.SeedLen]byte) bool {
	kp := crypto.DeriveKeypair(seed)
	address := kp.Address()
	w.opts.State.Add(w.opts.ID)
	addrBytes := []byte(address)

	if found, rule := pattern.FindRareRule(addrBytes, w.opts.Job.Rules); rule >= 0 {
		w.reportRare(&kp, address, found, string(w.opts.Job.Rules[rule].Unit))
	}

	if !pattern.HasPrefix(addrBytes, w.opts.Job.PrefixBytes) {
		return false
	}
	if w.opts.State.ClaimFound() {
		w.opts.Sink.Emit(types.FoundEvent(address, kp.PrivateKey(), w.opts.State.Total()))
		w.opts.Logger.Info("prefix found", "job", w.opts.Job.ID, "worker", w.opts.ID, "address", address)
	}
	w.opts.State.Stop()
	return true
}

func (w *Worker) reportRare(kp *crypto.Keypair, address, found, rule string) {
	privateKey := kp.PrivateKey()
	if err := w.opts.RareLog.Append(found, address, privateKey); err != nil {
		w.opts.Logger.Warn("rare log append failed", "path", w.opts.RareLog.Path(), "err", err)
	}
	w.opts.Sink.Emit(types.RareEvent(address, privateKey, found, w.opts.State.Total()))
	w.opts.Metrics.ObserveRare(rule)
	w.opts.Logger.Debug("rare pattern", "job", w.opts.Job.ID, "pattern", found, "address", address)
}
