package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hyperionlabs/mergebot/internal/apperr"
	"github.com/hyperionlabs/mergebot/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport double that lets tests control
// exactly when a response arrives (or doesn't).
type fakeTransport struct {
	sent chan []byte
	onMsg func(transport.Message)
	onClose func()
}

func newFakeTransport() *fakeTransport { return &fakeTransport{sent: make(chan []byte, 16)} }

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Disconnect() error { return nil }
func (f *fakeTransport) Send(ctx context.Context, msg transport.Message) error {
	f.sent <- append([]byte(nil), msg...)
	return nil
}
func (f *fakeTransport) OnMessage(cb func(transport.Message)) { f.onMsg = cb }
func (f *fakeTransport) OnError(cb func(error)) {}
func (f *fakeTransport) OnClose(cb func()) { f.onClose = cb }

func TestCall_ResolvesOnResponse(t *testing.T) {
	ft := newFakeTransport()
	mux := New("srv", ft)

	go func() {
		sentRaw := <-ft.sent
		var req Request
		require.NoError(t, json.Unmarshal(sentRaw, &req))
		resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID, "result": map[string]any{"ok": true}}
		raw, _ := json.Marshal(resp)
		ft.onMsg(raw)
	}()

	result, err := mux.Call(context.Background(), "tools/list", nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	assert.Equal(t, 0, mux.PendingCount())
}

func TestCall_TimesOut(t *testing.T) {
	ft := newFakeTransport()
	mux := New("srv", ft)

	_, err := mux.Call(context.Background(), "slow", nil, 10*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *apperr.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 0, mux.PendingCount())
}

func TestCall_RejectsOnClose(t *testing.T) {
	ft := newFakeTransport()
	mux := New("srv", ft)

	done := make(chan error, 1)
	go func() {
		_, err := mux.Call(context.Background(), "tools/list", nil, time.Second)
		done <- err
	}()

	// let Call register its waiter before closing.
	<-ft.sent
	time.Sleep(5 * time.Millisecond)
	ft.onClose()

	err := <-done
	require.Error(t, err)
	var closedErr *apperr.ConnectionClosed
	assert.ErrorAs(t, err, &closedErr)
}

func TestNotification_UnknownMethodIgnored(t *testing.T) {
	ft := newFakeTransport()
	mux := New("srv", ft)
	called := false
	mux.OnNotification("tools/list_changed", func(params json.RawMessage) { called = true })

	ft.onMsg([]byte(`{"jsonrpc":"2.0","method":"resources/list_changed"}`))
	assert.False(t, called)

	ft.onMsg([]byte(`{"jsonrpc":"2.0","method":"tools/list_changed"}`))
	assert.True(t, called)
}

func TestExactlyOneResolution(t *testing.T) {
	// property 8: for every request sent, exactly one of
	// {response, timeout, connection-close} resolves its waiter.
	ft := newFakeTransport()
	mux := New("srv", ft)

	resultCh := make(chan error, 1)
	go func() {
		_, err := mux.Call(context.Background(), "m", nil, 20*time.Millisecond)
		resultCh <- err
	}()
	<-ft.sent
	// Let it time out, then also close the connection; only the timeout
	// should have resolved the waiter (it was already removed from the table).
	err := <-resultCh
	require.Error(t, err)
	var timeoutErr *apperr.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)

	ft.onClose() // no-op: no pending waiters left
	assert.Equal(t, 0, mux.PendingCount())
}
