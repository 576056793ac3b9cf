package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/audiolibrelab/voicerec/internal/service"
	"github.com/audiolibrelab/voicerec/internal/session"
	"github.com/gorilla/websocket"
)

const (
	clientQueue  = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventMessage is pushed to WebSocket clients on every session event
type EventMessage struct {
	Type           string  `json:"type"`
	State          string  `json:"state"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ElapsedLabel   string  `json:"elapsed_label"`
	Fault          string  `json:"fault,omitempty"`
}

func newEventMessage(ev session.Event) EventMessage {
	msg := EventMessage{
		Type:           "event",
		State:          string(ev.State),
		ElapsedSeconds: ev.Elapsed.Seconds(),
		ElapsedLabel:   service.FormatElapsed(ev.Elapsed),
	}
	if ev.Fault != nil {
		msg.Fault = ev.Fault.Error()
	}
	return msg
}

func newSnapshotMessage(st service.Status) EventMessage {
	return EventMessage{
		Type:           "snapshot",
		State:          string(st.State),
		ElapsedSeconds: st.Elapsed.Seconds(),
		ElapsedLabel:   service.FormatElapsed(st.Elapsed),
		Fault:          st.Fault,
	}
}

type client struct {
	conn      *websocket.Conn
	send      chan EventMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump owns all writes to the connection
func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// hub fans session events out to connected clients
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// broadcast never blocks; clients that fall behind are dropped
func (h *hub) broadcast(msg EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slog.Warn("Dropping slow WebSocket client")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// handleEvents upgrades to a WebSocket and streams session events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan EventMessage, clientQueue),
		done: make(chan struct{}),
	}
	c.send <- newSnapshotMessage(s.service.Status())
	if !s.hub.add(c) {
		c.close()
		c.writePump()
		return
	}
	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	go c.writePump()

	// Reads only detect disconnects; clients send nothing meaningful
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(c)
	slog.Debug("WebSocket client disconnected", "remote", r.RemoteAddr)
}
