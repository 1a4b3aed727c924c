package script

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
)

// Scroll directions.
const (
	ScrollUp    = "UP"
	ScrollDown  = "DOWN"
	ScrollLeft  = "LEFT"
	ScrollRight = "RIGHT"
)

// Per-kind defaults applied by the decoder when a field is absent.
const (
	DefaultSwipeDuration  = 300 * time.Millisecond
	DefaultScrollDistance = 400
	DefaultScrollDuration = 300 * time.Millisecond
	DefaultWaitDelay      = time.Second
	DefaultOcrOutVar      = "ocrResult"
)

// scrollCenter is the gesture origin for Scroll, the centre of a 1080x1920 screen.
var scrollCenter = image.Pt(540, 960)

// TapStep taps a coordinate and then waits Delay.
// X and Y may contain ${name} references.
type TapStep struct {
	X     string
	Y     string
	Delay time.Duration
}

func (s *TapStep) Type() StepType { return StepTap }

func (s *TapStep) Execute(ctx context.Context, rc *RunContext) error {
	x, err := resolveInt(rc, "x", s.X)
	if err != nil {
		return err
	}
	y, err := resolveInt(rc, "y", s.Y)
	if err != nil {
		return err
	}
	if err := rc.Device.Tap(deviceContext(ctx), rc.Instance, x, y); err != nil {
		rc.Log.Warn("tap failed", "x", x, "y", y, "error", err)
	}
	sleep(ctx, s.Delay)
	return nil
}

// SwipeStep drags from (X1,Y1) to (X2,Y2) over Duration.
type SwipeStep struct {
	X1, Y1   string
	X2, Y2   string
	Duration time.Duration
}

func (s *SwipeStep) Type() StepType { return StepSwipe }

func (s *SwipeStep) Execute(ctx context.Context, rc *RunContext) error {
	var pts [4]int
	for i, f := range []struct{ name, val string }{
		{"x1", s.X1}, {"y1", s.Y1}, {"x2", s.X2}, {"y2", s.Y2},
	} {
		n, err := resolveInt(rc, f.name, f.val)
		if err != nil {
			return err
		}
		pts[i] = n
	}
	if err := rc.Device.Swipe(deviceContext(ctx), rc.Instance, pts[0], pts[1], pts[2], pts[3], s.Duration); err != nil {
		rc.Log.Warn("swipe failed", "error", err)
	}
	return nil
}

// ScrollStep swipes from the screen centre by Distance pixels.
// UP moves the finger down the screen, DOWN moves it up, and likewise for
// LEFT and RIGHT, so the content scrolls in the named direction.
type ScrollStep struct {
	Direction string
	Distance  int
	Duration  time.Duration
}

func (s *ScrollStep) Type() StepType { return StepScroll }

func (s *ScrollStep) Execute(ctx context.Context, rc *RunContext) error {
	dx, dy := 0, 0
	switch strings.ToUpper(strings.TrimSpace(s.Direction)) {
	case ScrollUp:
		dy = s.Distance
	case ScrollDown:
		dy = -s.Distance
	case ScrollLeft:
		dx = s.Distance
	case ScrollRight:
		dx = -s.Distance
	default:
		rc.Log.Warn("unknown scroll direction", "direction", s.Direction)
		return nil
	}
	c := scrollCenter
	if err := rc.Device.Swipe(deviceContext(ctx), rc.Instance, c.X, c.Y, c.X+dx, c.Y+dy, s.Duration); err != nil {
		rc.Log.Warn("scroll failed", "direction", s.Direction, "error", err)
	}
	return nil
}

// WaitStep pauses the run.
type WaitStep struct {
	Delay time.Duration
}

func (s *WaitStep) Type() StepType { return StepWait }

func (s *WaitStep) Execute(ctx context.Context, _ *RunContext) error {
	sleep(ctx, s.Delay)
	return nil
}

// InputTextStep types text on the device.
type InputTextStep struct {
	Text string
}

func (s *InputTextStep) Type() StepType { return StepInputText }

func (s *InputTextStep) Execute(ctx context.Context, rc *RunContext) error {
	text, err := rc.Resolve(s.Text)
	if err != nil {
		return fmt.Errorf("text: %w", err)
	}
	if err := rc.Device.InputText(deviceContext(ctx), rc.Instance, text); err != nil {
		rc.Log.Warn("input text failed", "error", err)
	}
	return nil
}

// OcrReadStep reads text from a screen region into a variable.
// The result is trimmed; an unavailable screenshot stores "".
type OcrReadStep struct {
	Region string
	OutVar string
	Lang   string
}

func (s *OcrReadStep) Type() StepType { return StepOcrRead }

func (s *OcrReadStep) Execute(ctx context.Context, rc *RunContext) error {
	lang := s.Lang
	if lang == "" {
		lang = rc.Lang
	}

	text := ""
	if img := rc.screenshot(ctx); img != nil {
		region := ParseRegion(s.Region, img.Bounds())
		out, err := rc.Reader.Read(deviceContext(ctx), img, region, lang)
		if err != nil {
			rc.Log.Warn("ocr read failed", "region", region.String(), "error", err)
		}
		text = strings.TrimSpace(out)
	}

	if strings.TrimSpace(s.OutVar) != "" {
		rc.Vars[s.OutVar] = text
	}
	rc.Log.Debug("ocr read", "var", s.OutVar, "text", text)
	return nil
}

// Log levels accepted by LogStep. Anything else logs at INFO.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogStep writes a message to the run's log sink.
type LogStep struct {
	Message string
	Level   string
}

func (s *LogStep) Type() StepType { return StepLog }

func (s *LogStep) Execute(_ context.Context, rc *RunContext) error {
	msg, err := rc.Resolve(s.Message)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}
	switch strings.ToUpper(strings.TrimSpace(s.Level)) {
	case LevelDebug:
		rc.Log.Debug(msg)
	case LevelWarn, "WARNING":
		rc.Log.Warn(msg)
	case LevelError:
		rc.Log.Error(msg)
	default:
		rc.Log.Info(msg)
	}
	return nil
}

// ExitStep ends the run cleanly.
type ExitStep struct{}

func (s *ExitStep) Type() StepType { return StepExit }

func (s *ExitStep) Execute(context.Context, *RunContext) error {
	return ErrExit
}

// CustomCodeStep holds user code that the engine does not evaluate.
// Executing it logs a notice and continues.
type CustomCodeStep struct {
	Code string
}

func (s *CustomCodeStep) Type() StepType { return StepCustomCode }

func (s *CustomCodeStep) Execute(_ context.Context, rc *RunContext) error {
	rc.Log.Info("custom code is not supported, skipping", "length", len(s.Code))
	return nil
}
