package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"github.com/stakeside/cashgame/pkg/hand"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds per-client backlog; slow clients lose updates
	// rather than stalling the table.
	sendBuffer = 16
)

// Hub fans hand updates out to websocket clients subscribed per table.
type Hub struct {
	log      slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	tables map[string]map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log slog.Logger) *Hub {
	if log == nil {
		log = slog.Disabled
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		tables: make(map[string]map[*client]bool),
	}
}

// Broadcast sends an update to every client subscribed to tableAddr. A
// client whose backlog is full is dropped.
func (h *Hub) Broadcast(tableAddr string, upd *hand.Update) {
	data, err := json.Marshal(upd)
	if err != nil {
		h.log.Errorf("marshal update for table %s: %v", tableAddr, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.tables[tableAddr] {
		select {
		case c.send <- data:
		default:
			h.log.Warnf("client backlog full on table %s, disconnecting", tableAddr)
			h.removeLocked(tableAddr, c)
		}
	}
}

// Subscribe upgrades the request and streams the table's updates until the
// client goes away.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, tableAddr string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.tables[tableAddr] == nil {
		h.tables[tableAddr] = make(map[*client]bool)
	}
	h.tables[tableAddr][c] = true
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(tableAddr, c)
}

// readPump discards inbound frames; the socket is broadcast-only. It exists
// to notice disconnects and answer pings.
func (h *Hub) readPump(tableAddr string, c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(tableAddr, c)
		h.mu.Unlock()
	}()
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (h *Hub) removeLocked(tableAddr string, c *client) {
	if subs := h.tables[tableAddr]; subs[c] {
		delete(subs, c)
		close(c.send)
		if len(subs) == 0 {
			delete(h.tables, tableAddr)
		}
	}
}
