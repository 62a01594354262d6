// Package feed streams execution reports to websocket subscribers and serves the HTTP
// health and stats endpoints.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x5487/order-process-system/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled by the HTTP server
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message types sent to subscribers.
const (
	TypeReport     = "report"
	TypeSubscribed = "subscribed"
)

// Message is one frame sent to a subscriber.
type Message struct {
	Type        string                    `json:"type"`
	Report      *protocol.ExecutionReport `json:"report,omitempty"`
	Instruments []string                  `json:"instruments,omitempty"`
}

// SubscribeRequest is sent by subscribers to filter the feed. An empty instrument list
// restores the unfiltered feed.
type SubscribeRequest struct {
	Op          string   `json:"op"` // subscribe
	Instruments []string `json:"instruments"`
}

// Hub fans execution reports out to websocket subscribers. It implements match.PublishLog.
//
// A subscriber whose send buffer is full is disconnected rather than slowing down the
// publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *zap.Logger

	dropped atomic.Uint64
}

// NewHub creates an empty hub. A nil logger disables logging.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Publish sends reports to every subscriber interested in their instrument.
func (h *Hub) Publish(reports ...*protocol.ExecutionReport) {
	var slow []*client

	for _, report := range reports {
		frame, err := json.Marshal(Message{Type: TypeReport, Report: report})
		if err != nil {
			h.logger.Error("failed to marshal report", zap.Uint64("order_id", report.OrderID), zap.Error(err))
			continue
		}

		h.mu.RLock()
		for c := range h.clients {
			if !c.wants(report.Instrument) {
				continue
			}
			select {
			case c.send <- frame:
			default:
				slow = append(slow, c)
			}
		}
		h.mu.RUnlock()
	}

	for _, c := range slow {
		if h.unregister(c) {
			h.dropped.Add(1)
			h.logger.Warn("slow feed subscriber disconnected", zap.String("client", c.id.String()))
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of subscribers disconnected for being too slow.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   xid.New(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("feed client connected", zap.String("client", c.id.String()), zap.Int("total", total))

	go c.writePump()
	go c.readPump()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// unregister removes c and reports whether it was still registered.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// client is one websocket subscriber.
type client struct {
	id   xid.ID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subsMu      sync.RWMutex
	instruments map[string]struct{} // nil means every instrument
}

func (c *client) wants(instrument string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if c.instruments == nil {
		return true
	}
	_, ok := c.instruments[instrument]
	return ok
}

func (c *client) subscribe(instruments []string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if len(instruments) == 0 {
		c.instruments = nil
		return
	}
	c.instruments = make(map[string]struct{}, len(instruments))
	for _, instrument := range instruments {
		c.instruments[instrument] = struct{}{}
	}
}

// readPump handles subscription requests until the connection fails.
func (c *client) readPump() {
	defer func() {
		if c.hub.unregister(c) {
			c.hub.logger.Info("feed client disconnected", zap.String("client", c.id.String()))
		}
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req SubscribeRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("feed read failed", zap.String("client", c.id.String()), zap.Error(err))
			}
			if _, ok := err.(*json.SyntaxError); ok {
				continue
			}
			return
		}

		if req.Op != "subscribe" {
			c.hub.logger.Debug("unknown feed op", zap.String("op", req.Op))
			continue
		}
		c.subscribe(req.Instruments)

		ack, _ := json.Marshal(Message{Type: TypeSubscribed, Instruments: req.Instruments})
		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			select {
			case c.send <- ack:
			default:
			}
		}
		c.hub.mu.RUnlock()
	}
}

// writePump forwards frames to the connection and keeps it alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
