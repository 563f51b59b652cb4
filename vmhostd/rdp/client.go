package rdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type Options struct {
	Timeouts Timeouts
	Resolver Resolver
	Logger   *slog.Logger
}

var nowFunc = time.Now

var (
	cleanupPolls    = 20
	cleanupInterval = 100 * time.Millisecond
)

// Client is a single RDP connection. It goes as far as the X.224 negotiation; the session is
// handed no further. The lock guards state only, network I/O runs unlocked on the caller's
// goroutine.
type Client struct {
	id       string
	timeouts Timeouts
	resolver Resolver
	log      *slog.Logger

	mu           sync.Mutex
	state        State
	conn         net.Conn
	cfg          Config
	lastError    string
	lastActivity time.Time
	cancel       context.CancelFunc
	// bumped whenever an in-flight connect is abandoned, so its result is dropped
	generation uint64
	callbacks  Callbacks

	clipboardText string
	audioVolume   int
	fullscreen    bool
}

func NewClient(opts Options) *Client {
	newClient := &Client{
		id:          uuid.NewString(),
		timeouts:    opts.Timeouts.withDefaults(),
		resolver:    opts.Resolver,
		log:         opts.Logger,
		state:       Disconnected,
		audioVolume: defaultAudioVolume,
	}

	if newClient.resolver == nil {
		newClient.resolver = net.DefaultResolver
	}

	if newClient.log == nil {
		newClient.log = slog.Default()
	}

	newClient.log = newClient.log.With("rdp", newClient.id)

	return newClient
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) SetCallbacks(callbacks Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callbacks = callbacks
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastError
}

// Config returns the active session config, or the last one used.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg
}

// setState must be called with c.mu held. It returns the callback to run once unlocked.
func (c *Client) setState(state State) func() {
	if c.state == state {
		return func() {}
	}

	if c.state == Connected {
		connectedGauge.Dec()
	}

	if state == Connected {
		connectedGauge.Inc()
	}

	c.state = state

	cb := c.callbacks.OnStateChanged
	if cb == nil {
		return func() {}
	}

	return func() { cb(state) }
}

func (c *Client) logMessage(message string) {
	c.log.Debug(message)

	c.mu.Lock()
	cb := c.callbacks.OnLogMessage
	c.mu.Unlock()

	if cb != nil {
		cb(message)
	}
}

// Connect resolves the host, opens a TCP connection and runs the RDP negotiation. It blocks
// for up to the connect and negotiation timeouts per address. Failures leave the client in
// the Error state with the cause available from LastError.
func (c *Client) Connect(ctx context.Context, cfg Config) error {
	c.mu.Lock()

	switch c.state {
	case Connected:
		c.lastError = "Already connected"
		c.mu.Unlock()

		return ErrAlreadyConnected
	case Connecting:
		c.mu.Unlock()

		return ErrConnectInProgress
	case Disconnected, Error:
	}

	c.lastActivity = nowFunc()

	err := cfg.Validate()
	if err != nil {
		c.lastError = err.Error()
		notify := c.setState(Error)
		c.mu.Unlock()
		notify()
		connectAttempts.WithLabelValues("invalid").Inc()

		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.cancel = cancel
	c.generation++
	generation := c.generation
	c.lastError = ""
	notify := c.setState(Connecting)
	c.mu.Unlock()
	notify()

	c.logMessage("Connecting to " + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))

	conn, err := c.handshake(ctx, cfg)

	c.mu.Lock()

	if generation != c.generation {
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}

		connectAttempts.WithLabelValues("abandoned").Inc()

		return fmt.Errorf("%w: %w", ErrConnectFailure, errAttemptAbandoned)
	}

	c.cancel = nil
	c.lastActivity = nowFunc()

	if err != nil {
		c.lastError = err.Error()
		notify = c.setState(Error)
		c.mu.Unlock()
		notify()

		c.log.Warn("rdp connect failed", "host", cfg.Host, "port", cfg.Port, "err", err)
		c.logMessage("Connection failed: " + err.Error())
		connectAttempts.WithLabelValues("failed").Inc()

		return err
	}

	c.conn = conn
	c.cfg = cfg
	notify = c.setState(Connected)
	c.mu.Unlock()
	notify()

	c.log.Info("rdp connected", "host", cfg.Host, "port", cfg.Port, "remote", conn.RemoteAddr().String())
	c.logMessage("Connected successfully")
	connectAttempts.WithLabelValues("connected").Inc()

	return nil
}

// handshake returns a negotiated connection, or an error with any socket already closed.
func (c *Client) handshake(ctx context.Context, cfg Config) (net.Conn, error) {
	conn, err := c.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c.touch()

	err = negotiate(ctx, conn, c.timeouts.Negotiation)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	return conn, nil
}

// dial tries every resolved address in turn, each bounded by the connect timeout.
func (c *Client) dial(ctx context.Context, cfg Config) (net.Conn, error) {
	addrs, err := c.resolver.LookupIPAddr(ctx, cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolutionFailure, cfg.Host, err)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolutionFailure, cfg.Host)
	}

	c.touch()

	dialer := net.Dialer{Timeout: c.timeouts.Connect}
	port := strconv.Itoa(cfg.Port)

	var errs []error

	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr.String(), port))
		if err == nil {
			return conn, nil
		}

		c.log.Debug("rdp dial failed", "addr", addr.String(), "err", err)
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailure, net.JoinHostPort(cfg.Host, port), errors.Join(errs...))
}

func (c *Client) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActivity = nowFunc()
}

// Disconnect closes any open connection and returns to Disconnected. An in-flight connect is
// cancelled and its result discarded. Safe to call in any state, any number of times.
func (c *Client) Disconnect() error {
	c.mu.Lock()

	if c.state == Disconnected && c.conn == nil {
		c.mu.Unlock()

		return nil
	}

	wasConnected := c.state == Connected
	err := c.resetLocked()
	notify := c.setState(Disconnected)
	c.mu.Unlock()

	if wasConnected {
		c.logMessage("Disconnected")
	}

	notify()

	return err
}

// resetLocked drops the connection and abandons any pending connect. The socket is closed
// before the caller changes state.
func (c *Client) resetLocked() error {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.generation++
	}

	var err error

	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	if err != nil {
		return fmt.Errorf("error closing connection: %w", err)
	}

	return nil
}

// Cancel asks an in-flight connect to give up. Blocked resolves, dials and reads return early;
// the connect itself moves the client to Error.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ForceCleanup cancels any connect, waits a short while for it to finish, then resets the
// client to Disconnected whether or not the connect has returned. A connect that returns
// later has its result discarded.
func (c *Client) ForceCleanup() {
	c.Cancel()

	for range cleanupPolls {
		if c.State() != Connecting {
			break
		}

		time.Sleep(cleanupInterval)
	}

	c.mu.Lock()

	if c.state == Connecting {
		c.log.Warn("connect did not finish after cancel, resetting anyway")
	}

	err := c.resetLocked()
	notify := c.setState(Disconnected)
	c.mu.Unlock()

	if err != nil {
		c.log.Debug("error closing connection during cleanup", "err", err)
	}

	notify()
}

// CheckTimeout reports whether a connect in progress has made no progress for longer than the
// idle timeout.
func (c *Client) CheckTimeout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connecting {
		return false
	}

	return nowFunc().Sub(c.lastActivity) > c.timeouts.Idle
}

// Snapshot is a point-in-time view of the client, suitable for JSON.
type Snapshot struct {
	ID        string `json:"id"`
	State     State  `json:"state"`
	LastError string `json:"lastError,omitempty"`
	Config    Config `json:"config"`
	Volume    int    `json:"audioVolume"`
}

func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ID:        c.id,
		State:     c.state,
		LastError: c.lastError,
		Config:    c.cfg.Redacted(),
		Volume:    c.audioVolume,
	}
}
