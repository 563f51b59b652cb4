package rdp

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager owns the clients of every RDP session in the process and a default config that
// callers may start new sessions from.
type Manager struct {
	opts Options

	mu      sync.Mutex
	clients []*Client
	global  Config
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{opts: opts}
}

// Create returns a new disconnected client owned by the manager.
func (m *Manager) Create() *Client {
	newClient := NewClient(m.opts)

	m.mu.Lock()
	m.clients = append(m.clients, newClient)
	m.mu.Unlock()

	return newClient
}

func (m *Manager) Clients() []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.clients)
}

func (m *Manager) Get(id string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		if c.ID() == id {
			return c, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", errClientNotFound, id)
}

// Remove disconnects the client and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()

	idx := slices.IndexFunc(m.clients, func(c *Client) bool { return c.ID() == id })
	if idx < 0 {
		m.mu.Unlock()

		return fmt.Errorf("%w: %s", errClientNotFound, id)
	}

	removed := m.clients[idx]
	m.clients = slices.Delete(m.clients, idx, idx+1)
	m.mu.Unlock()

	return removed.Disconnect()
}

func (m *Manager) SetGlobalConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.global = cfg
}

func (m *Manager) GlobalConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.global
}

// CloseAll disconnects every client in parallel. Clients already disconnected are fine.
func (m *Manager) CloseAll() error {
	var group errgroup.Group

	for _, c := range m.Clients() {
		group.Go(c.Disconnect)
	}

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("error closing rdp connections: %w", err)
	}

	return nil
}
