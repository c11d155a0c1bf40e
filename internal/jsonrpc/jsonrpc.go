// Package jsonrpc implements a JSON-RPC 2.0 request/response multiplexer:
// monotonic id assignment, a pending-waiter table, per-request timeout, and
// notification dispatch.
package jsonrpc

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperionlabs/mergebot/internal/apperr"
	"github.com/hyperionlabs/mergebot/internal/transport"
)

// Request is an outgoing JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID *int64 `json:"id,omitempty"`
	Method string `json:"method"`
	Params any `json:"params,omitempty"`
}

// envelope is the superset shape used to decode any incoming message before
// dispatching it as a response or a notification.
type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID *int64 `json:"id,omitempty"`
	Method string `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error *rpcErrorWire `json:"error,omitempty"`
}

type rpcErrorWire struct {
	Code int `json:"code"`
	Message string `json:"message"`
	Data any `json:"data,omitempty"`
}

type waiter struct {
	resolve chan json.RawMessage
	reject chan error
	timer *time.Timer
	method string
	timeoutMs int
}

// Multiplexer owns one connection's request-id assignment, pending-waiter
// table, and notification dispatch table. It is mutex-guarded rather than
// assumed single-threaded, since callers may have parallel in-flight
// requests on the same connection.
type Multiplexer struct {
	serverName string
	transport transport.Transport
	nextID int64

	mu sync.Mutex
	pending map[int64]*waiter
	handlers map[string]func(params json.RawMessage)
	closed bool
}

// New wires a multiplexer on top of an already-constructed transport. The
// caller is responsible for calling transport.Connect separately; New only
// attaches the message/close callbacks.
func New(serverName string, t transport.Transport) *Multiplexer {
	m := &Multiplexer{
		serverName: serverName,
		transport: t,
		pending: make(map[int64]*waiter),
		handlers: make(map[string]func(params json.RawMessage)),
	}
	t.OnMessage(m.handleMessage)
	t.OnClose(m.handleClose)
	return m
}

// OnNotification registers a handler for a named, id-less message.
// Unrecognized notification methods are ignored silently.
func (m *Multiplexer) OnNotification(method string, handler func(params json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = handler
}

// Call sends a request and blocks until exactly one of
// {response, timeout, connection-close} resolves it.
func (m *Multiplexer) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := atomic.AddInt64(&m.nextID, 1)
	req := Request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.New(apperr.Protocol, "jsonrpc.marshal", "encode request", err)
	}

	w := &waiter{
		resolve: make(chan json.RawMessage, 1),
		reject: make(chan error, 1),
		method: method,
		timeoutMs: int(timeout.Milliseconds()),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &apperr.ConnectionClosed{ServerName: m.serverName}
	}
	m.pending[id] = w
	w.timer = time.AfterFunc(timeout, func() { m.timeoutWaiter(id) })
	m.mu.Unlock()

	if err := m.transport.Send(ctx, raw); err != nil {
		m.removeWaiter(id)
		return nil, apperr.New(apperr.TransientTransport, "jsonrpc.send", "send request", err)
	}

	select {
	case <-ctx.Done():
		m.removeWaiter(id)
		return nil, &apperr.CancelledError{Op: method}
	case result := <-w.resolve:
		return result, nil
	case err := <-w.reject:
		return nil, err
	}
}

// Notify sends a request with no id; it never resolves a waiter.
func (m *Multiplexer) Notify(ctx context.Context, method string, params any) error {
	req := Request{JSONRPC: "2.0", Method: method, Params: params}
	raw, err := json.Marshal(req)
	if err != nil {
		return apperr.New(apperr.Protocol, "jsonrpc.marshal", "encode notification", err)
	}
	return m.transport.Send(ctx, raw)
}

func (m *Multiplexer) removeWaiter(id int64) *waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.pending[id]
	if !ok {
		return nil
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(m.pending, id)
	return w
}

func (m *Multiplexer) timeoutWaiter(id int64) {
	w := m.removeWaiter(id)
	if w == nil {
		return
	}
	w.reject <- &apperr.TimeoutError{ServerName: m.serverName, Method: w.method, TimeoutMs: w.timeoutMs}
}

// handleMessage dispatches one incoming frame: a response (has id) resolves
// or rejects its waiter; a notification (no id, has method) fans out to the
// registered handler and is otherwise ignored.
func (m *Multiplexer) handleMessage(msg transport.Message) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return // malformed frames are dropped, never crash the connection
	}

	if env.ID == nil {
		if env.Method == "" {
			return
		}
		m.mu.Lock()
		h, ok := m.handlers[env.Method]
		m.mu.Unlock()
		if ok && h != nil {
			h(env.Params)
		}
		return
	}

	w := m.removeWaiter(*env.ID)
	if w == nil {
		return // already timed out, or connection already closed
	}
	if env.Error != nil {
		w.reject <- &apperr.RPCError{Code: env.Error.Code, Message: env.Error.Message, Data: env.Error.Data}
		return
	}
	w.resolve <- env.Result
}

// handleClose fails every pending waiter with ConnectionClosed.
func (m *Multiplexer) handleClose() {
	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = make(map[int64]*waiter)
	m.mu.Unlock()

	for _, w := range pending {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.reject <- &apperr.ConnectionClosed{ServerName: m.serverName}
	}
}

// PendingCount reports outstanding requests. Nothing in the connection
// manager reads it; there is no transport-level flow control.
func (m *Multiplexer) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
