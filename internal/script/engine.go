package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Outcome is how a run ended.
type Outcome string

// Run outcomes.
const (
	// OutcomeCompleted means every step ran.
	OutcomeCompleted Outcome = "completed"

	// OutcomeExited means an Exit step ended the run.
	OutcomeExited Outcome = "exited"

	// OutcomeInterrupted means Stop was observed at a step boundary.
	OutcomeInterrupted Outcome = "interrupted"

	// OutcomeFailed means a step returned an error or panicked.
	OutcomeFailed Outcome = "failed"
)

// Result describes a finished run.
type Result struct {
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// RunKey identifies one execution. A run id may span several instances.
type RunKey struct {
	RunID    string
	Instance string
}

// StepObserver is notified after every top-level step. Implementations must
// not block.
type StepObserver interface {
	StepFinished(rc *RunContext, step Step, elapsed time.Duration, err error)
}

// Capabilities are the device-side services handed to every run.
type Capabilities struct {
	Device  Device
	Matcher Matcher
	Reader  TextReader

	// Lang is the default OCR language.
	Lang string
}

// Execution is a handle on a run submitted with RunAsync.
type Execution struct {
	key    RunKey
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Key returns the execution's (run id, instance) pair.
func (x *Execution) Key() RunKey { return x.key }

// Done is closed when the run has finished and is no longer tracked.
func (x *Execution) Done() <-chan struct{} { return x.done }

// Result returns the run's outcome. It is only meaningful after Done is closed.
func (x *Execution) Result() Result {
	<-x.done
	return x.result
}

// Engine executes scripts asynchronously, one worker goroutine per run.
//
// Thread Safety: all methods are safe for concurrent use.
type Engine struct {
	caps     Capabilities
	logger   Logger
	observer StepObserver

	mu     sync.Mutex
	runs   map[RunKey]*Execution
	closed bool
	wg     sync.WaitGroup
}

// NewEngine creates an engine that drives devices through caps.
func NewEngine(caps Capabilities, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	if caps.Lang == "" {
		caps.Lang = "eng"
	}
	return &Engine{
		caps:   caps,
		logger: logger,
		runs:   make(map[RunKey]*Execution),
	}
}

// SetObserver registers a step observer. It must be called before the first run.
func (e *Engine) SetObserver(o StepObserver) {
	e.observer = o
}

// RunAsync starts spec on a new worker and returns immediately.
//
// Returns ErrRunExists if the same (run id, instance) is still executing,
// ErrInvalidRunSpec if the spec lacks a run id, instance or script, and
// ErrEngineClosed after Shutdown.
func (e *Engine) RunAsync(spec *RunSpec) (*Execution, error) {
	if spec == nil || strings.TrimSpace(spec.RunID) == "" || strings.TrimSpace(spec.Instance) == "" || spec.Script == nil {
		return nil, ErrInvalidRunSpec
	}
	key := RunKey{RunID: spec.RunID, Instance: spec.Instance}

	ctx, cancel := context.WithCancel(context.Background())
	x := &Execution{key: key, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return nil, ErrEngineClosed
	}
	if _, exists := e.runs[key]; exists {
		e.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: run %s on %s", ErrRunExists, key.RunID, key.Instance)
	}
	e.runs[key] = x
	e.wg.Add(1)
	e.mu.Unlock()

	rc := &RunContext{
		RunID:    spec.RunID,
		BotID:    spec.BotID,
		Instance: spec.Instance,
		Vars:     deepCopyMap(spec.Variables),
		Device:   e.caps.Device,
		Matcher:  e.caps.Matcher,
		Reader:   e.caps.Reader,
		Log:      withRun(e.logger, spec.RunID, spec.Instance),
		Lang:     e.caps.Lang,
	}
	if rc.Vars == nil {
		rc.Vars = make(map[string]any)
	}

	go e.worker(ctx, x, rc, spec.Script)
	return x, nil
}

// Stop requests cancellation of every execution of runID. It is a no-op if
// none is running and may be called repeatedly.
func (e *Engine) Stop(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, x := range e.runs {
		if key.RunID == runID {
			x.cancel()
		}
	}
}

// IsRunning reports whether any execution of runID has not yet finished.
func (e *Engine) IsRunning(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.runs {
		if key.RunID == runID {
			return true
		}
	}
	return false
}

// Active returns the keys of every execution still in flight.
func (e *Engine) Active() []RunKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]RunKey, 0, len(e.runs))
	for key := range e.runs {
		keys = append(keys, key)
	}
	return keys
}

// Shutdown refuses new runs, cancels all executions and waits for their
// workers until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	for _, x := range e.runs {
		x.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs: %w", ctx.Err())
	}
}

func (e *Engine) worker(ctx context.Context, x *Execution, rc *RunContext, s *Script) {
	defer e.wg.Done()
	start := time.Now()
	rc.Log.Info("script run started", "script", s.Name, "steps", len(s.Steps))

	err := e.execute(ctx, rc, s.Steps)
	res := Result{Err: err, Elapsed: time.Since(start)}
	switch {
	case err == nil:
		res.Outcome = OutcomeCompleted
	case errors.Is(err, ErrExit):
		res.Outcome = OutcomeExited
		res.Err = nil
	case errors.Is(err, ErrInterrupted):
		res.Outcome = OutcomeInterrupted
	default:
		res.Outcome = OutcomeFailed
	}
	x.result = res

	e.mu.Lock()
	delete(e.runs, x.key)
	e.mu.Unlock()
	x.cancel()

	switch res.Outcome {
	case OutcomeFailed:
		rc.Log.Error("script run failed", "script", s.Name, "error", res.Err, "duration_ms", res.Elapsed.Milliseconds())
	case OutcomeInterrupted:
		rc.Log.Warn("script run interrupted", "script", s.Name, "duration_ms", res.Elapsed.Milliseconds())
	default:
		rc.Log.Info("script run finished", "script", s.Name, "outcome", string(res.Outcome), "duration_ms", res.Elapsed.Milliseconds())
	}
	close(x.done)
}

// execute runs the top-level steps, checking for cancellation between them.
// A panicking step is reported as a failure of that step.
func (e *Engine) execute(ctx context.Context, rc *RunContext, steps []Step) error {
	for i, step := range steps {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		started := time.Now()
		err := safeExecute(ctx, rc, step)
		if e.observer != nil {
			e.observer.StepFinished(rc, step, time.Since(started), err)
		}
		if err != nil {
			return wrapStep(err, i, step.Type())
		}
	}
	return nil
}

func safeExecute(ctx context.Context, rc *RunContext, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Execute(ctx, rc)
}

// runLogger prefixes every line with the run's identity.
type runLogger struct {
	base  Logger
	attrs []any
}

func withRun(base Logger, runID, instance string) Logger {
	return runLogger{base: base, attrs: []any{"run_id", runID, "instance", instance}}
}

func (l runLogger) with(args []any) []any {
	out := make([]any, 0, len(l.attrs)+len(args))
	return append(append(out, l.attrs...), args...)
}

func (l runLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.with(args)...) }
func (l runLogger) Info(msg string, args ...any)  { l.base.Info(msg, l.with(args)...) }
func (l runLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, l.with(args)...) }
func (l runLogger) Error(msg string, args ...any) { l.base.Error(msg, l.with(args)...) }
