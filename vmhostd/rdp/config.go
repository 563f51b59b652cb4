package rdp

import (
	"fmt"
	"time"

	"vmhost/vmhostd/config"
)

const (
	DefaultConnectTimeout     = 5000 * time.Millisecond
	DefaultNegotiationTimeout = 3000 * time.Millisecond
	DefaultIdleTimeout        = 30 * time.Second

	defaultAudioVolume = 50
)

// Config describes one RDP session. Credentials are only stored, the handshake stops before
// authentication.
type Config struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Username          string `json:"username,omitempty"`
	Password          string `json:"password,omitempty"` //nolint:gosec
	Domain            string `json:"domain,omitempty"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	ColorDepth        int    `json:"colorDepth"`
	EnableAudio       bool   `json:"enableAudio"`
	EnableClipboard   bool   `json:"enableClipboard"`
	EnableFileSharing bool   `json:"enableFileSharing"`
	SharedFolder      string `json:"sharedFolder,omitempty"`
}

func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidConfig)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}

	return nil
}

// Redacted returns a copy safe for logging and API responses.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}

	return c
}

func validColorDepth(depth int) bool {
	switch depth {
	case 8, 15, 16, 24, 32:
		return true
	default:
		return false
	}
}

// Timeouts bound each blocking stage of a connect.
type Timeouts struct {
	Connect     time.Duration
	Negotiation time.Duration
	// Idle is how long a connect may go without progress before CheckTimeout reports it.
	Idle time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}

	if t.Negotiation <= 0 {
		t.Negotiation = DefaultNegotiationTimeout
	}

	if t.Idle <= 0 {
		t.Idle = DefaultIdleTimeout
	}

	return t
}

// TimeoutsFromConfig reads the rdp section of the daemon config.
func TimeoutsFromConfig() Timeouts {
	return Timeouts{
		Connect:     time.Duration(config.Config.Rdp.ConnectTimeout) * time.Millisecond,
		Negotiation: time.Duration(config.Config.Rdp.NegotiationTimeout) * time.Millisecond,
		Idle:        time.Duration(config.Config.Rdp.IdleTimeout) * time.Second,
	}.withDefaults()
}
