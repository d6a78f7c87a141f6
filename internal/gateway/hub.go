package gateway

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub manages the live run-feed WebSocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer
	log     *slog.Logger

	Broadcaster *Broadcaster

	// OnClientCount is called with the new client count on connect and
	// disconnect (optional).
	OnClientCount func(n int)
}

// NewHub creates a Hub that keeps the last replaySize envelopes.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		log:     log.With("component", "hub"),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Broadcast delegates to the Broadcaster.
func (h *Hub) Broadcast(data []byte) {
	h.Broadcaster.Broadcast(data)
}

// HandleWSRequest registers an upgraded connection and replays every
// envelope newer than lastSeq.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) {
	client, count := h.register(conn, lastSeq)

	h.log.Info("ws client connected", "clients", count, "last_seq", lastSeq)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.writePump()
	go client.readPump()
}

// register queues the replay backlog and adds the client while holding the
// lock Broadcast takes, so every seq reaches the client exactly once and in
// order.
func (h *Hub) register(conn *websocket.Conn, lastSeq int64) (*Client, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	backlog := h.replay.Since(lastSeq)
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256+len(backlog)),
		hub:  h,
	}
	for _, env := range backlog {
		client.send <- env
	}
	h.clients[client] = true
	return client, len(h.clients)
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// Seq returns the sequence number of the latest broadcast.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
