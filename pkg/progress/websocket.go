package progress

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

// safeConn wraps a WebSocket connection with a write mutex so broadcasts from
// concurrent pipeline instances never interleave writes.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

func (sc *safeConn) writeJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if sc.closed {
		return nil
	}
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) close() {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	sc.conn.Close()
}

// Hub broadcasts pipeline events to websocket subscribers. It implements
// Sink, so it plugs straight into a step executor.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *utils.Logger

	mu    sync.Mutex
	conns map[*safeConn]bool
}

// NewHub creates an empty broadcast hub.
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		conns:  map[*safeConn]bool{},
	}
}

// Publish sends the event to every connected subscriber, dropping
// connections whose writes fail.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.mu.Lock()
	conns := make([]*safeConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.writeJSON(event); err != nil {
			h.logger.Logf("Dropping websocket subscriber: %v", err)
			h.remove(c)
		}
	}
}

// ServeHTTP upgrades the request and keeps the connection subscribed until
// the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.LogError(fmt.Errorf("websocket upgrade failed: %w", err))
		return
	}
	sc := &safeConn{conn: conn}
	h.mu.Lock()
	h.conns[sc] = true
	h.mu.Unlock()

	// Reads are only used to detect disconnects.
	go func() {
		defer h.remove(sc)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(sc *safeConn) {
	h.mu.Lock()
	delete(h.conns, sc)
	h.mu.Unlock()
	sc.close()
}

// SubscriberCount returns the number of live connections.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
