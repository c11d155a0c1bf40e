// Package mcpconn implements one logical MCP server connection:
// capability handshake, tool/resource/prompt discovery, change-notification
// re-discovery, metric aggregation, and exponential-backoff reconnect.
package mcpconn

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/config"
	"github.com/hyperionlabs/mergebot/internal/jsonrpc"
	"github.com/hyperionlabs/mergebot/internal/transport"
)

// Status enumerates the connection lifecycle states.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting Status = "connecting"
	StatusConnected Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError Status = "error"
)

// Metrics aggregates per-connection request statistics.
type Metrics struct {
	Total, Success, Failure int64
	AvgLatencyMs float64
	LastRequestAt time.Time
}

func (m *Metrics) record(d time.Duration, ok bool) {
	m.Total++
	if ok {
		m.Success++
	} else {
		m.Failure++
	}
	ms := float64(d.Milliseconds())
	if m.Total == 1 {
		m.AvgLatencyMs = ms
	} else {
		m.AvgLatencyMs += (ms - m.AvgLatencyMs) / float64(m.Total)
	}
	m.LastRequestAt = time.Now()
}

// Conn is one named connection to an external MCP tool server.
type Conn struct {
	Name string
	cfg config.MCPServerConfig
	log *zap.Logger

	mu sync.Mutex
	status Status
	mux *jsonrpc.Multiplexer
	t transport.Transport
	tools []*sdkmcp.Tool
	resources []*sdkmcp.Resource
	prompts []*sdkmcp.Prompt
	capabilities map[string]bool
	metrics Metrics
	reconnectAttempts int
	backoffCancel context.CancelFunc
	dialFn func() (transport.Transport, error)
}

// New builds a Conn around a dial function that produces a fresh, not-yet
// connected transport each time it's called (so reconnect can rebuild a
// subprocess/socket cleanly instead of reusing a dead one).
func New(name string, cfg config.MCPServerConfig, log *zap.Logger, dialFn func() (transport.Transport, error)) *Conn {
	return &Conn{
		Name: name,
		cfg: cfg,
		log: log.With(zap.String("mcpServer", name)),
		status: StatusDisconnected,
		dialFn: dialFn,
	}
}

// Status returns the current lifecycle state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Metrics returns a snapshot of the aggregated request metrics.
func (c *Conn) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Connect performs the disconnected -> connecting -> connected transition:
// dial, initialize handshake, then best-effort capability discovery.
func (c *Conn) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	t, err := c.dialFn()
	if err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("mcpconn %s: dial: %w", c.Name, err)
	}
	if err := t.Connect(ctx); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("mcpconn %s: transport connect: %w", c.Name, err)
	}

	mux := jsonrpc.New(c.Name, t)
	c.mu.Lock()
	c.t = t
	c.mux = mux
	c.reconnectAttempts = 0
	c.mu.Unlock()

	t.OnClose(c.handleTransportClose)
	mux.OnNotification("notifications/tools/list_changed", func(_ []byte) { c.refreshTools(context.Background()) })
	mux.OnNotification("notifications/resources/list_changed", func(_ []byte) { c.refreshResources(context.Background()) })
	mux.OnNotification("notifications/prompts/list_changed", func(_ []byte) { c.refreshPrompts(context.Background()) })

	if err := c.handshake(ctx); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("mcpconn %s: handshake: %w", c.Name, err)
	}

	c.discoverAll(ctx)
	c.setStatus(StatusConnected)
	return nil
}

func (c *Conn) handshake(ctx context.Context) error {
	timeout := c.timeout()
	params := map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{},
		"clientInfo": map[string]any{"name": "mergebot", "version": "1"},
	}
	result, err := c.call(ctx, "initialize", params, timeout)
	if err != nil {
		return err
	}
	caps := map[string]bool{}
	if result != nil {
		_ = decodeCapabilities(result, caps)
	}
	c.mu.Lock()
	c.capabilities = caps
	c.mu.Unlock()

	return c.mux.Notify(ctx, "notifications/initialized", map[string]any{})
}

// discoverAll runs tool/resource/prompt discovery independently; an
// individual failure leaves the corresponding list empty but never fails
// the connection.
func (c *Conn) discoverAll(ctx context.Context) {
	c.refreshTools(ctx)
	c.refreshResources(ctx)
	c.refreshPrompts(ctx)
}

func (c *Conn) refreshTools(ctx context.Context) {
	result, err := c.call(ctx, "tools/list", map[string]any{}, c.timeout())
	if err != nil {
		c.log.Warn("tool discovery failed, retaining previous list", zap.Error(err))
		return
	}
	tools, err := decodeList[sdkmcp.Tool](result, "tools")
	if err != nil {
		c.log.Warn("tool discovery decode failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
}

func (c *Conn) refreshResources(ctx context.Context) {
	result, err := c.call(ctx, "resources/list", map[string]any{}, c.timeout())
	if err != nil {
		c.log.Warn("resource discovery failed, retaining previous list", zap.Error(err))
		return
	}
	resources, err := decodeList[sdkmcp.Resource](result, "resources")
	if err != nil {
		c.log.Warn("resource discovery decode failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.resources = resources
	c.mu.Unlock()
}

func (c *Conn) refreshPrompts(ctx context.Context) {
	result, err := c.call(ctx, "prompts/list", map[string]any{}, c.timeout())
	if err != nil {
		c.log.Warn("prompt discovery failed, retaining previous list", zap.Error(err))
		return
	}
	prompts, err := decodeList[sdkmcp.Prompt](result, "prompts")
	if err != nil {
		c.log.Warn("prompt discovery decode failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.prompts = prompts
	c.mu.Unlock()
}

// Tools, Resources, Prompts return the last successfully discovered lists.
func (c *Conn) Tools() []*sdkmcp.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sdkmcp.Tool(nil), c.tools...)
}

func (c *Conn) Resources() []*sdkmcp.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sdkmcp.Resource(nil), c.resources...)
}

func (c *Conn) Prompts() []*sdkmcp.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sdkmcp.Prompt(nil), c.prompts...)
}

// Call issues a request to the server and records latency metrics.
func (c *Conn) Call(ctx context.Context, method string, params any) (jsonCallResult, error) {
	raw, err := c.call(ctx, method, params, c.timeout())
	return jsonCallResult(raw), err
}

type jsonCallResult = []byte

func (c *Conn) call(ctx context.Context, method string, params any, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	mux := c.mux
	c.mu.Unlock()
	if mux == nil {
		return nil, fmt.Errorf("mcpconn %s: not connected", c.Name)
	}
	start := time.Now()
	result, err := mux.Call(ctx, method, params, timeout)
	c.mu.Lock()
	c.metrics.record(time.Since(start), err == nil)
	c.mu.Unlock()
	return result, err
}

func (c *Conn) timeout() time.Duration {
	if c.cfg.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.cfg.TimeoutMs) * time.Millisecond
}

func (c *Conn) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// handleTransportClose drives connected -> reconnecting -> {connected|error}
// with exponential backoff min(2^(attempt-1)*1s, 30s), capped at
// maxReconnectAttempts (default 5). Disconnect() cancels the backoff timer
// via backoffCancel.
func (c *Conn) handleTransportClose() {
	c.mu.Lock()
	if c.status == StatusDisconnected {
		c.mu.Unlock()
		return // explicit Disconnect already handled teardown
	}
	if !c.cfg.ReconnectOnError {
		c.status = StatusError
		c.mu.Unlock()
		return
	}
	c.status = StatusReconnecting
	ctx, cancel := context.WithCancel(context.Background())
	c.backoffCancel = cancel
	c.mu.Unlock()

	go c.reconnectLoop(ctx)
}

func (c *Conn) reconnectLoop(ctx context.Context) {
	maxAttempts := c.cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	for {
		c.mu.Lock()
		c.reconnectAttempts++
		attempt := c.reconnectAttempts
		c.mu.Unlock()

		if attempt > maxAttempts {
			c.setStatus(StatusError)
			c.log.Error("exhausted reconnect attempts", zap.Int("attempts", attempt-1))
			return
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := c.Connect(ctx); err != nil {
			c.log.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		c.log.Info("reconnected", zap.Int("attempt", attempt))
		return
	}
}

// backoffDelay implements min(2^(attempt-1) * 1s, 30s).
func backoffDelay(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt-1))
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs * float64(time.Second))
}

// Disconnect tears down the connection explicitly, cancelling any pending
// backoff timer and failing all in-flight requests via transport close.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.status = StatusDisconnected
	if c.backoffCancel != nil {
		c.backoffCancel()
		c.backoffCancel = nil
	}
	t := c.t
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Disconnect()
}
