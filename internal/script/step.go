package script

import (
	"context"
	"image"
	"time"
)

// StepType identifies a step kind. Values are stable and appear in logs,
// telemetry and the JSON document "type" field (lower-cased).
type StepType string

// Step kinds.
const (
	StepTap        StepType = "TAP"
	StepSwipe      StepType = "SWIPE"
	StepScroll     StepType = "SCROLL"
	StepWait       StepType = "WAIT"
	StepInputText  StepType = "INPUT"
	StepIfImage    StepType = "IF_IMAGE"
	StepLoop       StepType = "LOOP"
	StepOcrRead    StepType = "OCR_READ"
	StepLog        StepType = "LOG"
	StepExit       StepType = "EXIT"
	StepCustomCode StepType = "CUSTOM_CODE"
)

// SupportedStepTypes returns every step kind in authoring order.
func SupportedStepTypes() []StepType {
	return []StepType{
		StepTap, StepSwipe, StepScroll, StepWait, StepInputText, StepIfImage,
		StepLoop, StepOcrRead, StepLog, StepExit, StepCustomCode,
	}
}

// Step is one executable unit of a script.
//
// Execute returns nil to continue, ErrExit to end the run cleanly, or any
// other error to fail the run.
type Step interface {
	Type() StepType
	Execute(ctx context.Context, rc *RunContext) error
}

// Device is the input/screen capability of an emulator instance.
type Device interface {
	Tap(ctx context.Context, instance string, x, y int) error
	Swipe(ctx context.Context, instance string, x1, y1, x2, y2 int, duration time.Duration) error
	InputText(ctx context.Context, instance, text string) error
	Screenshot(ctx context.Context, instance string) (image.Image, error)
}

// Matcher scores how well a template image appears in a screenshot.
// Scores are in [0,1]; a nil image or blank template path scores 0.
type Matcher interface {
	Score(img image.Image, templatePath string) float64
}

// TextReader extracts text from a region of a screenshot.
type TextReader interface {
	Read(ctx context.Context, img image.Image, region image.Rectangle, lang string) (string, error)
}

// Logger defines the logging interface used by the engine and the Log step.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RunContext is the mutable state of one run. It is owned by the worker
// executing the run and must not be shared.
type RunContext struct {
	RunID    string
	BotID    string
	Instance string

	// Vars is read by ${name} substitution and written by OcrRead.
	Vars map[string]any

	Device  Device
	Matcher Matcher
	Reader  TextReader
	Log     Logger

	// Lang is the OCR language used when a step does not name one.
	Lang string
}

// Resolve substitutes ${name} references in value from the run's variables.
func (rc *RunContext) Resolve(value string) (string, error) {
	return Resolve(value, rc.Vars)
}

// screenshot returns the current screen, or nil if it cannot be captured.
// Capture failures degrade to "no image" rather than failing the step.
func (rc *RunContext) screenshot(ctx context.Context) image.Image {
	img, err := rc.Device.Screenshot(deviceContext(ctx), rc.Instance)
	if err != nil {
		rc.Log.Warn("screenshot failed", "error", err)
		return nil
	}
	return img
}

// deviceContext detaches device calls from run cancellation. A stop request
// is honoured at the next step boundary, never in the middle of a device call.
func deviceContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// sleep waits for d or until ctx is cancelled. The step boundary check that
// follows reports the interruption.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
