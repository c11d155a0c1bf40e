package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket carries framed JSON as text-frame messages over a persistent
// full-duplex connection.
type WebSocket struct {
	URL string
	Header http.Header

	mu sync.Mutex
	conn *websocket.Conn
	onMsg func(Message)
	onErr func(error)
	onClose func()
}

var _ Transport = (*WebSocket)(nil)

func (w *WebSocket) OnMessage(cb func(Message)) { w.mu.Lock(); w.onMsg = cb; w.mu.Unlock() }
func (w *WebSocket) OnError(cb func(error)) { w.mu.Lock(); w.onErr = cb; w.mu.Unlock() }
func (w *WebSocket) OnClose(cb func()) { w.mu.Lock(); w.onClose = cb; w.mu.Unlock() }

func (w *WebSocket) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, w.URL, w.Header)
	if err != nil {
		return fmt.Errorf("websocket transport: dial %s: %w", w.URL, err)
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	go w.readLoop(conn)
	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			errCb, closeCb := w.onErr, w.onClose
			w.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err) && errCb != nil {
				errCb(err)
			}
			if closeCb != nil {
				closeCb()
			}
			return
		}
		w.mu.Lock()
		cb := w.onMsg
		w.mu.Unlock()
		if cb != nil {
			cb(data)
		}
	}
}

func (w *WebSocket) Send(ctx context.Context, msg Message) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket transport: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (w *WebSocket) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}
