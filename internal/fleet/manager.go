// Package fleet owns the set of live agents and the shared item catalog.
package fleet

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nrevox/growfleet/internal/agent"
	"github.com/nrevox/growfleet/internal/auth"
	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/socks5"
)

// CreateRequest carries everything needed to launch one agent.
type CreateRequest struct {
	Credentials model.Credentials
	SOCKS5      *socks5.Config
	Fetcher     auth.TokenFetcher
}

// Entry is one row of a fleet listing.
type Entry struct {
	ID string `json:"id"`
	agent.Snapshot
}

// Manager maps opaque handles to agents. One shared catalog is injected
// into every agent it creates.
type Manager struct {
	mu      sync.RWMutex
	agents  map[string]*agent.Agent
	catalog *items.Catalog
	loader  items.Loader
	authc   *auth.Client
	log     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLoader sets the external items.dat loader handed to agents.
func WithLoader(l items.Loader) Option {
	return func(m *Manager) { m.loader = l }
}

// WithAuthClient sets the preamble client shared by agents.
func WithAuthClient(c *auth.Client) Option {
	return func(m *Manager) { m.authc = c }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates an empty fleet around a shared catalog.
func NewManager(catalog *items.Catalog, opts ...Option) *Manager {
	m := &Manager{
		agents:  make(map[string]*agent.Agent),
		catalog: catalog,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the shared item catalog.
func (m *Manager) Catalog() *items.Catalog { return m.catalog }

// Create builds an agent, starts its worker, and returns its handle.
func (m *Manager) Create(req CreateRequest) (string, error) {
	a, err := agent.New(m.catalog, agent.Options{
		Credentials: req.Credentials,
		SOCKS5:      req.SOCKS5,
		Loader:      m.loader,
		Fetcher:     req.Fetcher,
		Auth:        m.authc,
		Logger:      m.log,
	})
	if err != nil {
		return "", fmt.Errorf("creating agent: %w", err)
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.agents[id] = a
	m.mu.Unlock()

	a.Start()
	m.log.Info("agent created", "id", id)
	return id, nil
}

// Get returns the agent under the handle.
func (m *Manager) Get(id string) (*agent.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// List returns a stable-ordered snapshot of the fleet.
func (m *Manager) List() []Entry {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.agents))
	for id, a := range m.agents {
		entries = append(entries, Entry{ID: id, Snapshot: a.Describe()})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Remove stops the agent gracefully, joins its worker, and drops it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	if ok {
		delete(m.agents, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no agent %q", id)
	}
	a.Stop()
	m.log.Info("agent removed", "id", id)
	return nil
}

// Shutdown stops every agent. Used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	agents := m.agents
	m.agents = make(map[string]*agent.Agent)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, a := range agents {
		wg.Add(1)
		go func(id string, a *agent.Agent) {
			defer wg.Done()
			a.Stop()
			m.log.Info("agent stopped", "id", id)
		}(id, a)
	}
	wg.Wait()
}
