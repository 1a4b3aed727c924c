package script

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// ─── Fakes ──────────────────────────────────────────────────────

type deviceCall struct {
	Op       string
	Instance string
	Args     []int
	Text     string
	Duration time.Duration
}

// fakeDevice records every call. Screenshot returns img (nil by default).
type fakeDevice struct {
	mu       sync.Mutex
	calls    []deviceCall
	img      image.Image
	shotErr  error
	tapErr   error
	tapHook  func()
	tapDelay time.Duration
}

func (d *fakeDevice) Tap(_ context.Context, instance string, x, y int) error {
	if d.tapDelay > 0 {
		time.Sleep(d.tapDelay)
	}
	d.mu.Lock()
	d.calls = append(d.calls, deviceCall{Op: "tap", Instance: instance, Args: []int{x, y}})
	hook := d.tapHook
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	return d.tapErr
}

func (d *fakeDevice) Swipe(_ context.Context, instance string, x1, y1, x2, y2 int, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, deviceCall{Op: "swipe", Instance: instance, Args: []int{x1, y1, x2, y2}, Duration: dur})
	return nil
}

func (d *fakeDevice) InputText(_ context.Context, instance, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, deviceCall{Op: "input", Instance: instance, Text: text})
	return nil
}

func (d *fakeDevice) Screenshot(_ context.Context, instance string) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, deviceCall{Op: "screenshot", Instance: instance})
	return d.img, d.shotErr
}

func (d *fakeDevice) Calls() []deviceCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]deviceCall, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDevice) count(op string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

type fakeMatcher struct {
	score float64
	calls int
}

func (m *fakeMatcher) Score(img image.Image, path string) float64 {
	m.calls++
	if img == nil || path == "" {
		return 0
	}
	return m.score
}

type fakeReader struct {
	text   string
	region image.Rectangle
	lang   string
}

func (r *fakeReader) Read(_ context.Context, _ image.Image, region image.Rectangle, lang string) (string, error) {
	r.region, r.lang = region, lang
	return r.text, nil
}

type logLine struct {
	Level string
	Msg   string
	Args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{Level: level, Msg: msg, Args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.Level == level && line.Msg == msg {
			return true
		}
	}
	return false
}

func newRunContext(dev *fakeDevice, vars map[string]any) (*RunContext, *captureLogger) {
	log := &captureLogger{}
	if vars == nil {
		vars = map[string]any{}
	}
	return &RunContext{
		RunID:    "run-1",
		Instance: "emu-1",
		Vars:     vars,
		Device:   dev,
		Matcher:  &fakeMatcher{},
		Reader:   &fakeReader{},
		Log:      log,
		Lang:     "eng",
	}, log
}

func taps(n int) []Step {
	out := make([]Step, n)
	for i := range out {
		out[i] = &TapStep{X: fmt.Sprint(i), Y: "0"}
	}
	return out
}
