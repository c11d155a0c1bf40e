// Package transport implements the three wire carriers behind one uniform
// contract: stdio subprocess, server-sent events, and websocket. All of
// them move opaque JSON objects; framing differs.
package transport

import "context"

// Message is an opaque JSON-RPC envelope; the jsonrpc package owns its
// shape, transport only moves bytes.
type Message = []byte

// Transport is the uniform contract every carrier satisfies.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, msg Message) error
	OnMessage(cb func(Message))
	OnError(cb func(error))
	OnClose(cb func())
}

// Kind tags which carrier a MCPServerConn uses.
type Kind string

const (
	KindStdio Kind = "stdio"
	KindSSE Kind = "sse"
	KindWebSocket Kind = "websocket"
)
