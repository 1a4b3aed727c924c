package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"time"
)

// Default settings.
const (
	DefaultTesseract = "tesseract"
	DefaultLang      = "eng"
	DefaultTimeout   = 15 * time.Second
)

// ErrOCRFailed is returned when tesseract cannot process an image.
var ErrOCRFailed = errors.New("ocr: failed")

// CommandRunner executes a program with stdin and returns its stdout.
type CommandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// TesseractReader implements script.TextReader.
type TesseractReader struct {
	binary  string
	timeout time.Duration
	run     CommandRunner
}

// NewTesseractReader creates a reader using the tesseract executable at path
// (empty for PATH lookup).
func NewTesseractReader(path string, timeout time.Duration) *TesseractReader {
	if path == "" {
		path = DefaultTesseract
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TesseractReader{binary: path, timeout: timeout, run: execRunner}
}

// WithRunner replaces the command runner. Used by tests.
func (r *TesseractReader) WithRunner(run CommandRunner) *TesseractReader {
	r.run = run
	return r
}

// Read returns the text tesseract finds in region of img. A nil image or an
// empty region reads as "".
func (r *TesseractReader) Read(ctx context.Context, img image.Image, region image.Rectangle, lang string) (string, error) {
	if img == nil {
		return "", nil
	}
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return "", nil
	}
	if lang == "" {
		lang = DefaultLang
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop(img, region)); err != nil {
		return "", fmt.Errorf("%w: encoding region: %w", ErrOCRFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.run(ctx, buf.Bytes(), r.binary, "stdin", "stdout", "-l", lang)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOCRFailed, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// crop copies region of img into a new image anchored at the origin.
func crop(img image.Image, region image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(dst, dst.Bounds(), img, region.Min, draw.Src)
	return dst
}

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
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
