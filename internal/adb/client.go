// Package adb drives Android emulator instances through the adb command line.
//
// Client implements script.Device. Instance names are mapped to adb serials
// through configuration; a name with no mapping is used as the serial
// directly, so "emulator-5554" works without any setup.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Default settings.
const (
	DefaultBinary         = "adb"
	DefaultCommandTimeout = 10 * time.Second
)

// ErrCommandFailed is returned when adb exits non-zero.
var ErrCommandFailed = errors.New("adb: command failed")

// CommandRunner executes a program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds Client settings.
type Config struct {
	// Binary is the adb executable. Defaults to "adb" on PATH.
	Binary string

	// Serials maps instance names to adb serials.
	Serials map[string]string

	// Timeout bounds each adb invocation.
	Timeout time.Duration
}

// Client issues input and screencap commands over adb.
//
// Thread Safety: Client holds no mutable state and is safe for concurrent use.
type Client struct {
	binary  string
	serials map[string]string
	timeout time.Duration
	run     CommandRunner
	logger  Logger
}

// New creates a Client that shells out to adb.
func New(cfg Config, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCommandTimeout
	}
	serials := make(map[string]string, len(cfg.Serials))
	for k, v := range cfg.Serials {
		serials[k] = v
	}
	return &Client{
		binary:  cfg.Binary,
		serials: serials,
		timeout: cfg.Timeout,
		run:     execRunner,
		logger:  logger,
	}
}

// WithRunner replaces the command runner. Used by tests.
func (c *Client) WithRunner(run CommandRunner) *Client {
	c.run = run
	return c
}

// Serial returns the adb serial for instance.
func (c *Client) Serial(instance string) string {
	if s, ok := c.serials[instance]; ok && s != "" {
		return s
	}
	return instance
}

// Tap sends a single touch at (x, y).
func (c *Client) Tap(ctx context.Context, instance string, x, y int) error {
	_, err := c.shell(ctx, instance, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// Swipe drags from (x1, y1) to (x2, y2) over duration.
func (c *Client) Swipe(ctx context.Context, instance string, x1, y1, x2, y2 int, duration time.Duration) error {
	_, err := c.shell(ctx, instance, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(duration.Milliseconds(), 10))
	return err
}

// InputText types text into the focused field.
func (c *Client) InputText(ctx context.Context, instance, text string) error {
	if text == "" {
		return nil
	}
	_, err := c.shell(ctx, instance, "input", "text", EncodeText(text))
	return err
}

// Screenshot captures the screen as a decoded PNG.
func (c *Client) Screenshot(ctx context.Context, instance string) (image.Image, error) {
	out, err := c.exec(ctx, "-s", c.Serial(instance), "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decoding screencap from %s: %w", instance, err)
	}
	return img, nil
}

// Devices lists the serials adb reports as attached and ready.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	out, err := c.exec(ctx, "devices")
	if err != nil {
		return nil, err
	}
	var serials []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}

func (c *Client) shell(ctx context.Context, instance string, args ...string) ([]byte, error) {
	full := append([]string{"-s", c.Serial(instance), "shell"}, args...)
	return c.exec(ctx, full...)
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.run(ctx, c.binary, args...)
	c.logger.Debug("adb command", "args", strings.Join(args, " "), "duration_ms", time.Since(start).Milliseconds(), "error", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCommandFailed, strings.Join(args, " "), err)
	}
	return out, nil
}

// shellEscaper protects characters the device shell would interpret.
var shellEscaper = strings.NewReplacer(
	`\`, `\\`, `"`, `\"`, `'`, `\'`, "`", "\\`", `$`, `\$`,
	`&`, `\&`, `|`, `\|`, `;`, `\;`, `<`, `\<`, `>`, `\>`,
	`(`, `\(`, `)`, `\)`, `*`, `\*`, `~`, `\~`, `?`, `\?`,
)

// EncodeText prepares text for "input text": shell metacharacters are
// escaped and spaces become %s.
func EncodeText(text string) string {
	return strings.ReplaceAll(shellEscaper.Replace(text), " ", "%s")
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
