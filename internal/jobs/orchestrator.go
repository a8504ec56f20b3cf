package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/logger"
)

// ErrTimeout marks a run abandoned at the job timeout boundary. It is
// reported distinctly from regular failures.
var ErrTimeout = errors.New("job timed out")

// Run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// PhaseSpan records one pipeline phase's wall-clock duration.
type PhaseSpan struct {
	Name    string
	Elapsed time.Duration
}

// PhaseRecorder collects per-phase timings from a running job.
type PhaseRecorder struct {
	mu    sync.Mutex
	spans []PhaseSpan
}

// Time runs fn and records its duration under name.
func (r *PhaseRecorder) Time(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.mu.Lock()
	r.spans = append(r.spans, PhaseSpan{Name: name, Elapsed: time.Since(start)})
	r.mu.Unlock()
	return err
}

// Spans returns the recorded phases in execution order.
func (r *PhaseRecorder) Spans() []PhaseSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PhaseSpan, len(r.spans))
	copy(out, r.spans)
	return out
}

// Report is the top-level result of one orchestrated run.
type Report struct {
	Family  Family
	Task    uint64
	Outcome string
	Phases  []PhaseSpan
	Elapsed time.Duration
	Err     error
}

// RunFunc is the work executed under the family lock and job timeout.
type RunFunc func(ctx context.Context, rec *PhaseRecorder) error

// Orchestrator enforces single-flight execution per job family and bounds
// each run's wall-clock time. The lock is released on every exit path.
type Orchestrator struct {
	state    *State
	timeout  time.Duration
	lockPoll time.Duration
}

// NewOrchestrator builds an orchestrator over the shared job state.
func NewOrchestrator(state *State, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Orchestrator{
		state:    state,
		timeout:  timeout,
		lockPoll: time.Second,
	}
}

// Run executes fn for the family: waits for the lock, takes it, runs fn under
// the job timeout, and releases the lock whether fn succeeds, fails, panics
// or overruns. On timeout the worker is abandoned, not rolled back; the dedup
// checks downstream make the next run safe.
func (o *Orchestrator) Run(ctx context.Context, family Family, fn RunFunc) Report {
	start := time.Now()
	report := Report{Family: family}

	task, err := o.state.NextTask(family)
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Err = fmt.Errorf("advance task counter: %w", err)
		report.Elapsed = time.Since(start)
		return report
	}
	report.Task = task

	if err := o.acquire(ctx, family, task); err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		report.Elapsed = time.Since(start)
		return report
	}
	defer o.release(family, task)

	logger.InfoObj("job starting", "job_start", map[string]any{
		"family": string(family),
		"task":   task,
	})

	rec := &PhaseRecorder{}
	report.Outcome, report.Err = o.execute(ctx, rec, fn)
	report.Phases = rec.Spans()
	report.Elapsed = time.Since(start)

	fields := map[string]any{
		"family":     string(family),
		"task":       task,
		"outcome":    report.Outcome,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	}
	for _, span := range report.Phases {
		fields[span.Name+"_ms"] = span.Elapsed.Milliseconds()
	}
	if report.Err != nil {
		fields["error"] = report.Err.Error()
		logger.ErrorObj("job finished", "job_report", fields)
	} else {
		logger.InfoObj("job finished", "job_report", fields)
	}
	return report
}

// acquire blocks until the family lock clears, then takes it.
func (o *Orchestrator) acquire(ctx context.Context, family Family, task uint64) error {
	waiting := false
	for {
		ok, err := o.state.TryLock(family)
		if err != nil {
			return fmt.Errorf("acquire %s lock: %w", family, err)
		}
		if ok {
			return nil
		}
		if !waiting {
			waiting = true
			logger.InfoObj("job already running, waiting for lock", "job_wait", map[string]any{
				"family": string(family),
				"task":   task,
			})
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s lock: %w", family, ctx.Err())
		case <-time.After(o.lockPoll):
		}
	}
}

func (o *Orchestrator) release(family Family, task uint64) {
	if err := o.state.Unlock(family); err != nil {
		logger.ErrorObj("lock release failed", "job_unlock_error", map[string]any{
			"family": string(family),
			"task":   task,
			"error":  err.Error(),
		})
	}
}

// execute runs fn on a worker goroutine so a hung phase cannot outlive the
// timeout boundary from the caller's point of view.
func (o *Orchestrator) execute(ctx context.Context, rec *PhaseRecorder, fn RunFunc) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("job panicked: %v", p)
			}
		}()
		done <- fn(runCtx, rec)
	}()

	select {
	case err := <-done:
		if err != nil {
			return OutcomeFailed, err
		}
		return OutcomeSucceeded, nil
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return OutcomeTimeout, ErrTimeout
		}
		return OutcomeFailed, runCtx.Err()
	}
}
