package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/tracking"
)

const (
	clientBuffer = 32
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var hubLogf = monitoring.Prefixed("ws")

// Hub fans filtered records out to websocket viewers. A viewer that cannot
// keep up loses messages rather than stalling the pipeline.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	dropped atomic.Uint64
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Observe implements tracking.Observer.
func (h *Hub) Observe(_, filtered tracking.DetectionRecord) {
	if h.Count() == 0 {
		return
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		hubLogf("encode record: %v", err)
		return
	}
	h.Broadcast(data)
}

// Broadcast queues msg for every viewer without blocking.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow viewers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// ServeHTTP upgrades the request and streams records until the viewer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLogf("upgrade: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.add(c)
	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	hubLogf("viewer connected from %s (%d total)", c.conn.RemoteAddr(), n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		hubLogf("viewer disconnected (%d total)", n)
	}
}

// readLoop only exists to notice the viewer going away and to process
// pongs.
func (h *Hub) readLoop(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
