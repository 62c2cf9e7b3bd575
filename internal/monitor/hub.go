// Package monitor is the ambient dashboard surface (spec §9): a
// gorilla/websocket hub that broadcasts uplink/downlink/stat events to
// every connected client. It is inverted from the teacher's
// internal/cloud.Client: where that package is a reconnecting client
// dialing out to a single remote endpoint, Hub is a server accepting any
// number of inbound client connections and fanning the same event stream
// out to all of them. Never consulted by Engine to decide anything —
// Engine runs identically whether or not a Hub is wired in.
package monitor

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

// EventKind tags the JSON frames broadcast to every client.
type EventKind string

const (
	EventUplink   EventKind = "uplink"
	EventDownlink EventKind = "downlink"
	EventStat     EventKind = "stat"
)

// Frame is one broadcast message, serialized as JSON to every client.
type Frame struct {
	Kind      EventKind        `json:"kind"`
	Channel   int              `json:"channel,omitempty"`
	RSSI      int32            `json:"rssi,omitempty"`
	SNR       float64          `json:"snr,omitempty"`
	Size      int              `json:"size,omitempty"`
	AckError  string           `json:"ack_error,omitempty"`
	Counters  *gwproto.Snapshot `json:"counters,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// client is one connected dashboard session.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Frame
}

// Hub tracks every connected client and fans broadcast frames out to all
// of them without blocking the caller. Construct with NewHub and mount
// ServeWS on an HTTP route.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

// NewHub returns an empty Hub ready to accept connections.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*client),
	}
}

// ServeWS upgrades r to a websocket connection and registers it as a
// client until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade failed: %v", err)
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan Frame, 32)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.send)
	c.conn.Close()
}

// broadcast fans frame out to every connected client, dropping it for any
// client whose send buffer is full rather than blocking the caller.
func (h *Hub) broadcast(frame Frame) {
	frame.Timestamp = time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			log.Printf("monitor: client %s send buffer full, dropping frame", c.id)
		}
	}
}

// BroadcastUplink satisfies forwarder.MonitorSink.
func (h *Hub) BroadcastUplink(channel int, rssi int32, snr float64, size int) {
	h.broadcast(Frame{Kind: EventUplink, Channel: channel, RSSI: rssi, SNR: snr, Size: size})
}

// BroadcastDownlink satisfies forwarder.MonitorSink.
func (h *Hub) BroadcastDownlink(channel int, errCode gwproto.TxAckError) {
	h.broadcast(Frame{Kind: EventDownlink, Channel: channel, AckError: string(errCode)})
}

// BroadcastStat satisfies forwarder.MonitorSink.
func (h *Hub) BroadcastStat(snap gwproto.Snapshot) {
	h.broadcast(Frame{Kind: EventStat, Counters: &snap})
}

// ClientCount reports how many dashboard sessions are currently attached.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
