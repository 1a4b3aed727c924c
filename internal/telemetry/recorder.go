// Package telemetry turns engine step completions and runner status
// changes into InfluxDB samples.
package telemetry

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/emubot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
)

// Sink receives samples. *influxdb.Client satisfies it.
type Sink interface {
	WriteStepMetric(s influxdb.StepSample)
	WriteRunStatus(s influxdb.StatusSample)
}

// Stats are running totals since the recorder was created.
type Stats struct {
	Steps       uint64 `json:"steps"`
	StepFailed  uint64 `json:"step_failures"`
	Transitions uint64 `json:"status_transitions"`
}

// Recorder implements script.StepObserver and runner.StatusObserver.
// Both callbacks are non-blocking because the sink batches writes.
type Recorder struct {
	sink Sink
	now  func() time.Time

	steps       atomic.Uint64
	failed      atomic.Uint64
	transitions atomic.Uint64
}

// NewRecorder returns a Recorder writing to sink. A nil sink only counts.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// StepFinished records one top-level step. Exit is not a failure.
func (r *Recorder) StepFinished(rc *script.RunContext, step script.Step, elapsed time.Duration, err error) {
	failed := err != nil && !errors.Is(err, script.ErrExit) && !errors.Is(err, script.ErrInterrupted)

	r.steps.Add(1)
	if failed {
		r.failed.Add(1)
	}
	if r.sink == nil {
		return
	}

	r.sink.WriteStepMetric(influxdb.StepSample{
		RunID:    rc.RunID,
		BotID:    rc.BotID,
		Instance: rc.Instance,
		StepType: string(step.Type()),
		Duration: elapsed,
		Failed:   failed,
		At:       r.now(),
	})
}

// StatusChanged records one status transition.
func (r *Recorder) StatusChanged(st runner.RunStatus) {
	r.transitions.Add(1)
	if r.sink == nil {
		return
	}

	at := st.UpdatedAt
	if at.IsZero() {
		at = r.now()
	}
	r.sink.WriteRunStatus(influxdb.StatusSample{
		RunID:    st.RunID,
		BotID:    st.BotID,
		Instance: st.Instance,
		Script:   st.Script,
		State:    string(st.State),
		Message:  st.Message,
		At:       at,
	})
}

// Stats returns the running totals.
func (r *Recorder) Stats() Stats {
	return Stats{
		Steps:       r.steps.Load(),
		StepFailed:  r.failed.Load(),
		Transitions: r.transitions.Load(),
	}
}
