package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTesseractReader_Read(t *testing.T) {
	var gotArgs []string
	var gotSize image.Rectangle
	r := NewTesseractReader("/usr/bin/tesseract", 0).WithRunner(func(_ context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		img, err := png.Decode(bytes.NewReader(stdin))
		if err != nil {
			return nil, err
		}
		gotSize = img.Bounds()
		return []byte("  Gold 1200\n\n"), nil
	})

	img := image.NewRGBA(image.Rect(0, 0, 100, 200))
	text, err := r.Read(context.Background(), img, image.Rect(10, 10, 40, 30), "deu")
	require.NoError(t, err)

	assert.Equal(t, "Gold 1200", text)
	assert.Equal(t, []string{"/usr/bin/tesseract", "stdin", "stdout", "-l", "deu"}, gotArgs)
	assert.Equal(t, image.Rect(0, 0, 30, 20), gotSize)
}

func TestTesseractReader_NoImage(t *testing.T) {
	called := false
	r := NewTesseractReader("", 0).WithRunner(func(context.Context, []byte, string, ...string) ([]byte, error) {
		called = true
		return nil, nil
	})

	text, err := r.Read(context.Background(), nil, image.Rect(0, 0, 10, 10), "")
	require.NoError(t, err)
	assert.Equal(t, "", text)

	text, err = r.Read(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)), image.Rect(50, 50, 60, 60), "")
	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.False(t, called)
}

func TestTesseractReader_Failure(t *testing.T) {
	r := NewTesseractReader("", 0).WithRunner(func(context.Context, []byte, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	_, err := r.Read(context.Background(), image.NewRGBA(image.Rect(0, 0, 5, 5)), image.Rect(0, 0, 5, 5), "eng")
	assert.ErrorIs(t, err, ErrOCRFailed)
}

func TestFixedMatcher(t *testing.T) {
	dir := t.TempDir()
	tpl := filepath.Join(dir, "ok.png")
	require.NoError(t, os.WriteFile(tpl, []byte("png"), 0o600))
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	m := NewFixedMatcher(0.95)

	assert.Equal(t, 0.95, m.Score(img, tpl))
	assert.Zero(t, m.Score(nil, tpl))
	assert.Zero(t, m.Score(img, ""))
	assert.Zero(t, m.Score(img, filepath.Join(dir, "missing.png")))
}
