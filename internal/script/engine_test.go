package script

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(dev *fakeDevice) (*Engine, *captureLogger) {
	log := &captureLogger{}
	eng := NewEngine(Capabilities{Device: dev, Matcher: &fakeMatcher{}, Reader: &fakeReader{}}, log)
	return eng, log
}

func waitResult(t *testing.T, x *Execution) Result {
	t.Helper()
	select {
	case <-x.Done():
		return x.Result()
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return Result{}
	}
}

type stepRecord struct {
	mu    sync.Mutex
	types []StepType
}

func (r *stepRecord) StepFinished(_ *RunContext, step Step, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, step.Type())
}

// ─── Outcomes ───────────────────────────────────────────────────

func TestEngine_Completed(t *testing.T) {
	dev := &fakeDevice{}
	eng, _ := newTestEngine(dev)
	rec := &stepRecord{}
	eng.SetObserver(rec)

	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: &Script{Name: "s", Steps: taps(3)}})
	require.NoError(t, err)

	res := waitResult(t, x)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, dev.count("tap"))
	assert.False(t, eng.IsRunning("r1"))
	assert.Equal(t, []StepType{StepTap, StepTap, StepTap}, rec.types)
}

func TestEngine_ExitIsNotFailure(t *testing.T) {
	dev := &fakeDevice{}
	eng, log := newTestEngine(dev)

	steps := []Step{&TapStep{X: "1", Y: "1"}, &ExitStep{}, &TapStep{X: "2", Y: "2"}}
	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: &Script{Name: "s", Steps: steps}})
	require.NoError(t, err)

	res := waitResult(t, x)
	assert.Equal(t, OutcomeExited, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, dev.count("tap"))
	assert.False(t, log.has("ERROR", "script run failed"))
}

func TestEngine_FailedStepEndsRun(t *testing.T) {
	dev := &fakeDevice{}
	eng, log := newTestEngine(dev)

	steps := []Step{&TapStep{X: "${missing}", Y: "1"}, &TapStep{X: "2", Y: "2"}}
	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: &Script{Name: "s", Steps: steps}})
	require.NoError(t, err)

	res := waitResult(t, x)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnresolvedVariable)
	assert.Zero(t, dev.count("tap"))
	assert.True(t, log.has("ERROR", "script run failed"))
}

type panicStep struct{}

func (panicStep) Type() StepType                            { return StepCustomCode }
func (panicStep) Execute(context.Context, *RunContext) error { panic("boom") }

func TestEngine_PanicIsContained(t *testing.T) {
	eng, _ := newTestEngine(&fakeDevice{})

	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: &Script{Name: "s", Steps: []Step{panicStep{}}}})
	require.NoError(t, err)

	res := waitResult(t, x)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Err.Error(), "boom")
}

// ─── Stop / tracking ────────────────────────────────────────────

func TestEngine_StopObservedAtBoundary(t *testing.T) {
	dev := &fakeDevice{}
	eng, _ := newTestEngine(dev)

	first := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	dev.tapHook = func() {
		once.Do(func() {
			close(first)
			<-release
		})
	}

	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: &Script{Name: "s", Steps: taps(5)}})
	require.NoError(t, err)

	<-first
	eng.Stop("r1")
	eng.Stop("r1")
	close(release)

	res := waitResult(t, x)
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	assert.Equal(t, 1, dev.count("tap"))
	assert.False(t, eng.IsRunning("r1"))
}

func TestEngine_StopInterruptsWait(t *testing.T) {
	eng, _ := newTestEngine(&fakeDevice{})

	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: &Script{Name: "s", Steps: []Step{&WaitStep{Delay: time.Hour}}}})
	require.NoError(t, err)
	require.True(t, eng.IsRunning("r1"))

	eng.Stop("r1")
	res := waitResult(t, x)
	assert.Equal(t, OutcomeCompleted, res.Outcome, "wait was the last step, so no boundary follows it")
}

func TestEngine_StopUnknownIsNoop(t *testing.T) {
	eng, _ := newTestEngine(&fakeDevice{})
	assert.NotPanics(t, func() { eng.Stop("nope") })
	assert.False(t, eng.IsRunning("nope"))
}

func TestEngine_DuplicateRunRejected(t *testing.T) {
	eng, _ := newTestEngine(&fakeDevice{})
	long := &Script{Name: "s", Steps: []Step{&WaitStep{Delay: time.Hour}, &TapStep{X: "1", Y: "1"}}}

	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: long})
	require.NoError(t, err)

	_, err = eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: long})
	assert.ErrorIs(t, err, ErrRunExists)

	// Same run id on another instance is a separate execution.
	y, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-2", Script: long})
	require.NoError(t, err)
	assert.Len(t, eng.Active(), 2)

	eng.Stop("r1")
	assert.Equal(t, OutcomeInterrupted, waitResult(t, x).Outcome)
	assert.Equal(t, OutcomeInterrupted, waitResult(t, y).Outcome)
	assert.False(t, eng.IsRunning("r1"))
}

func TestEngine_InvalidSpec(t *testing.T) {
	eng, _ := newTestEngine(&fakeDevice{})

	_, err := eng.RunAsync(nil)
	assert.ErrorIs(t, err, ErrInvalidRunSpec)
	_, err = eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1"})
	assert.ErrorIs(t, err, ErrInvalidRunSpec)
	_, err = eng.RunAsync(&RunSpec{Instance: "emu-1", Script: &Script{Name: "s"}})
	assert.ErrorIs(t, err, ErrInvalidRunSpec)
}

func TestEngine_VariablesAreCopied(t *testing.T) {
	dev := &fakeDevice{}
	eng, _ := newTestEngine(dev)
	eng.caps.Reader = &fakeReader{text: "42"}
	dev.img = nil

	vars := map[string]any{"seed": "1"}
	s := &Script{Name: "s", Steps: []Step{&OcrReadStep{Region: DefaultRegion, OutVar: "seed"}}}
	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: s, Variables: vars})
	require.NoError(t, err)
	waitResult(t, x)

	assert.Equal(t, map[string]any{"seed": "1"}, vars)
}

func TestEngine_OcrResultVisibleToLaterSteps(t *testing.T) {
	dev := &fakeDevice{img: image.NewRGBA(image.Rect(0, 0, 200, 100))}
	eng, log := newTestEngine(dev)
	reader := &fakeReader{text: "  1250 \n"}
	eng.caps.Reader = reader

	s := &Script{Name: "s", Steps: []Step{
		&OcrReadStep{Region: "0,0,50,50", OutVar: "gold"},
		&LogStep{Message: "gold=${gold}", Level: LevelInfo},
	}}
	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: s})
	require.NoError(t, err)

	res := waitResult(t, x)
	require.Equal(t, OutcomeCompleted, res.Outcome, "err: %v", res.Err)
	assert.True(t, log.has("INFO", "gold=1250"))
	assert.Equal(t, 1, dev.count("screenshot"))
	assert.Equal(t, image.Rect(0, 0, 50, 50), reader.region)
}

func TestEngine_SharedScriptAcrossInstances(t *testing.T) {
	dev := &fakeDevice{}
	eng, _ := newTestEngine(dev)
	s := &Script{Name: "s", Steps: []Step{&LoopStep{Count: 10, Steps: taps(1)}}}

	var execs []*Execution
	for _, inst := range []string{"a", "b", "c"} {
		x, err := eng.RunAsync(&RunSpec{RunID: "r-" + inst, Instance: inst, Script: s})
		require.NoError(t, err)
		execs = append(execs, x)
	}
	for _, x := range execs {
		assert.Equal(t, OutcomeCompleted, waitResult(t, x).Outcome)
	}
	assert.Equal(t, 30, dev.count("tap"))
}

func TestEngine_Shutdown(t *testing.T) {
	eng, _ := newTestEngine(&fakeDevice{})
	long := &Script{Name: "s", Steps: []Step{&WaitStep{Delay: time.Hour}, &TapStep{X: "1", Y: "1"}}}

	x, err := eng.RunAsync(&RunSpec{RunID: "r1", Instance: "emu-1", Script: long})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Shutdown(ctx))
	assert.Equal(t, OutcomeInterrupted, x.Result().Outcome)

	_, err = eng.RunAsync(&RunSpec{RunID: "r2", Instance: "emu-1", Script: long})
	assert.ErrorIs(t, err, ErrEngineClosed)
}
