package eventbus

import (
	"sort"
	"sync"
)

// Manager keeps independent clients by id and toggles debug mode across all
// of them.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	debug   bool
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
	}
}

// Add stores client under id, replacing any previous client with that id.
// The client inherits the manager's debug mode when it is enabled.
func (m *Manager) Add(id string, client *Client) {
	if client == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[id] = client
	if m.debug {
		client.SetDebug(true)
	}
}

// Remove forgets the client stored under id and returns it.
func (m *Manager) Remove(id string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	client := m.clients[id]
	delete(m.clients, id)
	return client
}

// RemoveAll forgets every client.
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients = make(map[string]*Client)
}

// Get returns the client stored under id, or nil.
func (m *Manager) Get(id string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.clients[id]
}

// All returns every client, ordered by id.
func (m *Manager) All() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*Client, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.clients[id])
	}
	return result
}

// EnableDebug turns debug mode on for every client, including ones added later.
func (m *Manager) EnableDebug() {
	m.setDebug(true)
}

// DisableDebug turns debug mode off for every client.
func (m *Manager) DisableDebug() {
	m.setDebug(false)
}

// InDebugMode reports whether debug mode is enabled.
func (m *Manager) InDebugMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debug
}

func (m *Manager) setDebug(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.debug = enabled
	for _, client := range m.clients {
		client.SetDebug(enabled)
	}
}
