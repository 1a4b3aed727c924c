package adb

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	Name string
	Args []string
}

type fakeRunner struct {
	mu       sync.Mutex
	commands []recordedCommand
	out      []byte
	err      error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, recordedCommand{Name: name, Args: args})
	return f.out, f.err
}

func newTestClient(f *fakeRunner) *Client {
	return New(Config{
		Binary:  "/opt/platform-tools/adb",
		Serials: map[string]string{"farm-1": "127.0.0.1:5555"},
	}, nil).WithRunner(f.run)
}

func TestClient_Input(t *testing.T) {
	f := &fakeRunner{}
	c := newTestClient(f)
	ctx := context.Background()

	require.NoError(t, c.Tap(ctx, "farm-1", 10, 20))
	require.NoError(t, c.Swipe(ctx, "emulator-5554", 1, 2, 3, 4, 300*time.Millisecond))
	require.NoError(t, c.InputText(ctx, "farm-1", "hi there"))
	require.NoError(t, c.InputText(ctx, "farm-1", ""))

	require.Len(t, f.commands, 3)
	assert.Equal(t, "/opt/platform-tools/adb", f.commands[0].Name)
	assert.Equal(t, []string{"-s", "127.0.0.1:5555", "shell", "input", "tap", "10", "20"}, f.commands[0].Args)
	assert.Equal(t, []string{"-s", "emulator-5554", "shell", "input", "swipe", "1", "2", "3", "4", "300"}, f.commands[1].Args)
	assert.Equal(t, []string{"-s", "127.0.0.1:5555", "shell", "input", "text", "hi%sthere"}, f.commands[2].Args)
}

func TestClient_Screenshot(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	f := &fakeRunner{out: buf.Bytes()}
	img, err := newTestClient(f).Screenshot(context.Background(), "farm-1")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	assert.Equal(t, []string{"-s", "127.0.0.1:5555", "exec-out", "screencap", "-p"}, f.commands[0].Args)

	f.out = []byte("not a png")
	_, err = newTestClient(f).Screenshot(context.Background(), "farm-1")
	assert.Error(t, err)
}

func TestClient_CommandError(t *testing.T) {
	f := &fakeRunner{err: errors.New("device offline")}
	err := newTestClient(f).Tap(context.Background(), "farm-1", 1, 1)
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "device offline")
}

func TestClient_Devices(t *testing.T) {
	f := &fakeRunner{out: []byte("List of devices attached\nemulator-5554\tdevice\n127.0.0.1:5555\toffline\nemulator-5556\tdevice\n\n")}
	serials, err := newTestClient(f).Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"emulator-5554", "emulator-5556"}, serials)
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"a b  c", "a%sb%s%sc"},
		{"it's $5", `it\'s%s\$5`},
		{"a&b|c", `a\&b\|c`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeText(tt.in), tt.in)
	}
}
