package rdp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRequiresConnection(t *testing.T) {
	c := testClient(t, Timeouts{})

	ops := map[string]func() error{
		"SetResolution":          func() error { return c.SetResolution(1920, 1080) },
		"SetColorDepth":          func() error { return c.SetColorDepth(24) },
		"SendMouseEvent":         func() error { return c.SendMouseEvent(1, 2, 1, true) },
		"SendKeyboardEvent":      func() error { return c.SendKeyboardEvent(65, true) },
		"SendTextInput":          func() error { return c.SendTextInput("hello") },
		"EnableClipboardSharing": func() error { return c.EnableClipboardSharing(true) },
		"SetClipboardText":       func() error { return c.SetClipboardText("copied") },
		"EnableFileSharing":      func() error { return c.EnableFileSharing(true) },
		"SetSharedFolder":        func() error { return c.SetSharedFolder("/tmp/share") },
		"EnableAudio":            func() error { return c.EnableAudio(true) },
		"SetAudioVolume":         func() error { return c.SetAudioVolume(10) },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, op(), ErrNotConnected)
			assert.Equal(t, "Not connected", c.LastError())
		})
	}

	assert.Equal(t, defaultAudioVolume, c.AudioVolume())
	assert.Empty(t, c.ClipboardText())
	assert.Empty(t, c.SharedFolder())
}

func TestSessionDisplay(t *testing.T) {
	c := connectedClient(t)

	require.NoError(t, c.SetResolution(1920, 1080))
	require.ErrorIs(t, c.SetResolution(0, 1080), ErrInvalidConfig)

	require.NoError(t, c.SetColorDepth(16))
	require.ErrorIs(t, c.SetColorDepth(12), ErrInvalidConfig)

	cfg := c.Config()
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 1080, cfg.Height)
	assert.Equal(t, 16, cfg.ColorDepth)

	require.NoError(t, c.EnableFullscreen(true))
	assert.True(t, c.Fullscreen())
}

func TestFullscreenWithoutConnection(t *testing.T) {
	c := testClient(t, Timeouts{})

	require.NoError(t, c.EnableFullscreen(true))
	assert.True(t, c.Fullscreen())
}

func TestSessionInputCallbacks(t *testing.T) {
	c := connectedClient(t)

	type mouseEvent struct {
		x, y, button int
		pressed      bool
	}

	type keyEvent struct {
		key     int
		pressed bool
	}

	var (
		mu        sync.Mutex
		mice      []mouseEvent
		keys      []keyEvent
		clipboard []string
		messages  []string
	)

	c.SetCallbacks(Callbacks{
		OnMouseEvent: func(x, y, button int, pressed bool) {
			mu.Lock()
			defer mu.Unlock()

			mice = append(mice, mouseEvent{x, y, button, pressed})
		},
		OnKeyboardEvent: func(key int, pressed bool) {
			mu.Lock()
			defer mu.Unlock()

			keys = append(keys, keyEvent{key, pressed})
		},
		OnClipboardData: func(text string) {
			mu.Lock()
			defer mu.Unlock()

			clipboard = append(clipboard, text)
		},
		OnLogMessage: func(message string) {
			mu.Lock()
			defer mu.Unlock()

			messages = append(messages, message)
		},
	})

	require.NoError(t, c.SendMouseEvent(10, 20, 1, true))
	require.NoError(t, c.SendMouseEvent(10, 20, 1, false))
	require.NoError(t, c.SendKeyboardEvent(65, true))
	require.NoError(t, c.SendTextInput("hello"))
	require.NoError(t, c.SetClipboardText("copied text"))

	assert.Equal(t, "copied text", c.ClipboardText())

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []mouseEvent{{10, 20, 1, true}, {10, 20, 1, false}}, mice)
	assert.Equal(t, []keyEvent{{65, true}}, keys)
	assert.Equal(t, []string{"copied text"}, clipboard)
	assert.Contains(t, messages, "Text input: hello")
}

func TestSessionSharingAndAudio(t *testing.T) {
	c := connectedClient(t)

	require.NoError(t, c.EnableClipboardSharing(true))
	require.NoError(t, c.EnableFileSharing(true))
	require.NoError(t, c.SetSharedFolder("/srv/share"))
	require.NoError(t, c.EnableAudio(true))

	cfg := c.Config()
	assert.True(t, cfg.EnableClipboard)
	assert.True(t, cfg.EnableFileSharing)
	assert.True(t, cfg.EnableAudio)
	assert.Equal(t, "/srv/share", c.SharedFolder())

	assert.Equal(t, 50, c.AudioVolume())
	require.NoError(t, c.SetAudioVolume(80))
	require.NoError(t, c.SetAudioVolume(0))
	require.NoError(t, c.SetAudioVolume(100))

	err := c.SetAudioVolume(101)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, c.LastError(), "between 0 and 100")

	require.ErrorIs(t, c.SetAudioVolume(-1), ErrInvalidConfig)
	assert.Equal(t, 100, c.AudioVolume())

	require.NoError(t, c.Disconnect())
	require.ErrorIs(t, c.EnableAudio(false), ErrNotConnected)
	assert.Equal(t, "/srv/share", c.SharedFolder())
}
