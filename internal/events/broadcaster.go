package events

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize: 1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcaster upgrades incoming HTTP connections to websockets and
// streams every Bus envelope to each connected client, serializing writes
// per-connection with its own mutex since gorilla/websocket connections
// are not safe for concurrent writers.
type Broadcaster struct {
	bus *Bus
	log *zap.Logger

	mu sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

func NewBroadcaster(bus *Bus, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Broadcaster{bus: bus, log: log, clients: make(map[*websocket.Conn]*sync.Mutex)}
	bus.Subscribe(b.onEvent)
	return b
}

// HandleWebSocket is a gin handler that upgrades the request and keeps
// the connection registered until the client disconnects.
func (b *Broadcaster) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	writeMu := &sync.Mutex{}
	b.mu.Lock()
	b.clients[conn] = writeMu
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) onEvent(ev Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn, writeMu := range b.clients {
		writeMu.Lock()
		err := conn.WriteJSON(ev)
		writeMu.Unlock()
		if err != nil {
			b.log.Debug("drop websocket client after write error", zap.Error(err))
			delete(b.clients, conn)
			conn.Close()
		}
	}
}

// ClientCount reports how many websocket clients are currently connected.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
