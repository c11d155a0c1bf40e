package mcpconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/cache"
	"github.com/hyperionlabs/mergebot/internal/config"
	"github.com/hyperionlabs/mergebot/internal/transport"
)

// capabilitySnapshot is what the TTL capability cache stores per
// server: the last-known tool/resource/prompt names, independent of
// whether the live connection is currently up.
type capabilitySnapshot struct {
	ToolNames []string
	ResourceNames []string
	PromptNames []string
}

// Manager owns one Conn per configured MCP server plus the shared
// capability TTL cache and byte-bounded resource content cache.
type Manager struct {
	log *zap.Logger
	mu sync.RWMutex
	conns map[string]*Conn
	capCache *cache.TTLCache[string, capabilitySnapshot]
	resCache *ByteBoundedCache
}

// NewManager builds a manager; capTTL bounds the capability cache, and
// resourceCacheBytes bounds the resource content cache's total size.
func NewManager(log *zap.Logger, capTTL time.Duration, resourceCacheBytes int) *Manager {
	return &Manager{
		log: log,
		conns: make(map[string]*Conn),
		capCache: cache.New[string, capabilitySnapshot](256, capTTL),
		resCache: NewByteBoundedCache(resourceCacheBytes),
	}
}

// AddServer connects to a newly configured server and registers it.
func (m *Manager) AddServer(ctx context.Context, cfg config.MCPServerConfig, dialFn func() (transport.Transport, error)) (*Conn, error) {
	conn := New(cfg.Name, cfg, m.log, dialFn)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("mcp manager: add server %s: %w", cfg.Name, err)
	}
	m.mu.Lock()
	m.conns[cfg.Name] = conn
	m.mu.Unlock()
	m.refreshCapabilityCache(cfg.Name, conn)
	return conn, nil
}

// RemoveServer disconnects and forgets a server.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()
	m.capCache.Remove(name)
	if !ok {
		return nil
	}
	return conn.Disconnect()
}

// Get returns a connected server by name.
func (m *Manager) Get(name string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[name]
	return c, ok
}

// Connected returns every connection currently in the `connected` state.
func (m *Manager) Connected() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		if c.Status() == StatusConnected {
			out = append(out, c)
		}
	}
	return out
}

// Capabilities returns the cached capability snapshot for a server,
// falling back to the live connection (and populating the cache) on miss.
func (m *Manager) Capabilities(name string) capabilitySnapshot {
	if snap, ok := m.capCache.Get(name); ok {
		return snap
	}
	m.mu.RLock()
	conn, ok := m.conns[name]
	m.mu.RUnlock()
	if !ok {
		return capabilitySnapshot{}
	}
	return m.refreshCapabilityCache(name, conn)
}

func (m *Manager) refreshCapabilityCache(name string, conn *Conn) capabilitySnapshot {
	snap := capabilitySnapshot{}
	for _, t := range conn.Tools() {
		snap.ToolNames = append(snap.ToolNames, t.Name)
	}
	for _, r := range conn.Resources() {
		snap.ResourceNames = append(snap.ResourceNames, r.Name)
	}
	for _, p := range conn.Prompts() {
		snap.PromptNames = append(snap.PromptNames, p.Name)
	}
	m.capCache.Set(name, snap)
	return snap
}

// DisconnectAll tears down every managed connection, e.g. on process exit.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		_ = c.Disconnect()
	}
}
