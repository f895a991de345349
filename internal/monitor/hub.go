// Package monitor bridges the driver's status and inbound frame streams to
// websocket clients.
package monitor

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types.
const (
	EventStatus  = "status"
	EventInbound = "inbound"
)

// Event is the JSON message sent to clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusPayload mirrors kb1.Status.
type StatusPayload struct {
	Connected bool   `json:"connected"`
	Peer      string `json:"peer,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FramePayload carries one notification from the primary channel.
type FramePayload struct {
	Hex string `json:"hex"`
}

const (
	clientQueue = 32
	writeWait   = time.Second
)

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub keeps the latest link status and one outbound queue per client.
// Every client has a single writer goroutine, so a connection is never
// written concurrently. A client whose queue is full is dropped.
type Hub struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	status  StatusPayload
	clients map[*websocket.Conn]*client
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]*client),
	}
}

// Attach registers conn. Its first event is the current status.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan Event, clientQueue)}
	h.mu.Lock()
	h.clients[conn] = c
	c.send <- Event{Type: EventStatus, Payload: h.status}
	h.mu.Unlock()
	go h.write(c)
}

// Detach unregisters conn; its writer closes the connection once the queue
// is drained.
func (h *Hub) Detach(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(conn)
}

func (h *Hub) detachLocked(conn *websocket.Conn) {
	if c, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Status records p as the current status and queues it for every client.
func (h *Hub) Status(p StatusPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = p
	h.queueLocked(Event{Type: EventStatus, Payload: p})
}

// Frame queues an inbound frame for every client.
func (h *Hub) Frame(frame []byte) {
	ev := Event{Type: EventInbound, Payload: FramePayload{Hex: hex.EncodeToString(frame)}}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queueLocked(ev)
}

// Close detaches every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		h.detachLocked(conn)
	}
}

func (h *Hub) queueLocked(ev Event) {
	for conn, c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.WithField("remote", conn.RemoteAddr().String()).Debug("dropping slow websocket client")
			h.detachLocked(conn)
		}
	}
}

func (h *Hub) write(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.log.WithError(err).Debug("websocket write failed")
			h.Detach(c.conn)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
