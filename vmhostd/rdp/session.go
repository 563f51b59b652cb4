package rdp

import (
	"fmt"
	"strconv"
)

// Session controls only change local state and fire callbacks. Nothing goes on the wire past
// the negotiation.

// connectedLocked takes the lock and fails with ErrNotConnected unless connected. On success
// the caller must unlock.
func (c *Client) connectedLocked() error {
	c.mu.Lock()

	if c.state != Connected {
		c.lastError = "Not connected"
		c.mu.Unlock()

		return ErrNotConnected
	}

	c.lastActivity = nowFunc()

	return nil
}

// failLocked records err as the last error and releases the lock.
func (c *Client) failLocked(err error) error {
	c.lastError = err.Error()
	c.mu.Unlock()

	return err
}

func enabledString(enable bool) string {
	if enable {
		return "enabled"
	}

	return "disabled"
}

func (c *Client) SetResolution(width, height int) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	if width <= 0 || height <= 0 {
		return c.failLocked(fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, width, height))
	}

	c.cfg.Width = width
	c.cfg.Height = height
	c.mu.Unlock()

	c.logMessage("Resolution set to " + strconv.Itoa(width) + "x" + strconv.Itoa(height))

	return nil
}

func (c *Client) SetColorDepth(depth int) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	if !validColorDepth(depth) {
		return c.failLocked(fmt.Errorf("%w: color depth %d", ErrInvalidConfig, depth))
	}

	c.cfg.ColorDepth = depth
	c.mu.Unlock()

	c.logMessage("Color depth set to " + strconv.Itoa(depth))

	return nil
}

// EnableFullscreen records the display preference. It does not need a connection.
func (c *Client) EnableFullscreen(enable bool) error {
	c.mu.Lock()
	c.fullscreen = enable
	c.mu.Unlock()

	c.logMessage("Fullscreen " + enabledString(enable))

	return nil
}

func (c *Client) Fullscreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fullscreen
}

func (c *Client) SendMouseEvent(x, y, button int, pressed bool) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	cb := c.callbacks.OnMouseEvent
	c.mu.Unlock()

	if cb != nil {
		cb(x, y, button, pressed)
	}

	return nil
}

func (c *Client) SendKeyboardEvent(key int, pressed bool) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	cb := c.callbacks.OnKeyboardEvent
	c.mu.Unlock()

	if cb != nil {
		cb(key, pressed)
	}

	return nil
}

func (c *Client) SendTextInput(text string) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	c.mu.Unlock()

	c.logMessage("Text input: " + text)

	return nil
}

func (c *Client) EnableClipboardSharing(enable bool) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	c.cfg.EnableClipboard = enable
	c.mu.Unlock()

	c.logMessage("Clipboard sharing " + enabledString(enable))

	return nil
}

// ClipboardText returns the last text set, connected or not.
func (c *Client) ClipboardText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clipboardText
}

func (c *Client) SetClipboardText(text string) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	c.clipboardText = text
	cb := c.callbacks.OnClipboardData
	c.mu.Unlock()

	if cb != nil {
		cb(text)
	}

	return nil
}

func (c *Client) EnableFileSharing(enable bool) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	c.cfg.EnableFileSharing = enable
	c.mu.Unlock()

	c.logMessage("File sharing " + enabledString(enable))

	return nil
}

func (c *Client) SetSharedFolder(path string) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	c.cfg.SharedFolder = path
	c.mu.Unlock()

	c.logMessage("Shared folder set to: " + path)

	return nil
}

func (c *Client) SharedFolder() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg.SharedFolder
}

func (c *Client) EnableAudio(enable bool) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	c.cfg.EnableAudio = enable
	c.mu.Unlock()

	c.logMessage("Audio " + enabledString(enable))

	return nil
}

// SetAudioVolume accepts 0 to 100.
func (c *Client) SetAudioVolume(volume int) error {
	err := c.connectedLocked()
	if err != nil {
		return err
	}

	if volume < 0 || volume > 100 {
		return c.failLocked(fmt.Errorf("%w: volume must be between 0 and 100, got %d", ErrInvalidConfig, volume))
	}

	c.audioVolume = volume
	c.mu.Unlock()

	c.logMessage("Audio volume set to " + strconv.Itoa(volume))

	return nil
}

func (c *Client) AudioVolume() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.audioVolume
}
