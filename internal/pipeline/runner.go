package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by TryStart while a job is in flight.
var ErrAlreadyRunning = errors.New("ingestion already running")

// Job is a runnable ingestion.
type Job interface {
	Run(ctx context.Context) (*Result, error)
}

// Reloader is refreshed after every successful job.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Outcome is the result of the last finished background job.
type Outcome struct {
	Result *Result
	Err    error
}

// Runner executes a job in the background, at most one at a time. A second
// trigger while a job runs is rejected, not queued.
type Runner struct {
	job      Job
	reloader Reloader
	logger   *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	last    atomic.Pointer[Outcome]
}

// NewRunner creates a runner. reloader may be nil.
func NewRunner(job Job, reloader Reloader, logger *zap.Logger) *Runner {
	return &Runner{job: job, reloader: reloader, logger: logger}
}

// TryStart launches the job in the background. It returns
// ErrAlreadyRunning without side effects if a job is already in flight.
// The job outlives ctx cancellation.
func (r *Runner) TryStart(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.last.Store(r.runOnce(context.WithoutCancel(ctx)))
	}()
	return nil
}

// RunNow runs the job synchronously, under the same single-flight guard.
func (r *Runner) RunNow(ctx context.Context) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	out := r.runOnce(ctx)
	r.last.Store(out)
	return out.Result, out.Err
}

func (r *Runner) runOnce(ctx context.Context) *Outcome {
	res, err := r.job.Run(ctx)
	if err != nil {
		r.logger.Error("background ingestion failed", zap.Error(err))
		return &Outcome{Result: res, Err: err}
	}
	if r.reloader != nil {
		if err := r.reloader.Reload(ctx); err != nil {
			r.logger.Error("reload after ingestion failed", zap.Error(err))
			return &Outcome{Result: res, Err: err}
		}
	}
	return &Outcome{Result: res}
}

// Running reports whether a job is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Last returns the outcome of the most recent finished job, or nil.
func (r *Runner) Last() *Outcome {
	return r.last.Load()
}
