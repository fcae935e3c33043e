package testserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wireEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// hub fans signals out to every open connection of a user, keyed by user id.
type hub struct {
	mu        sync.RWMutex
	userConns map[string]map[*client]bool
}

func newHub() *hub {
	return &hub{userConns: make(map[string]map[*client]bool)}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userConns[c.userID] == nil {
		h.userConns[c.userID] = make(map[*client]bool)
	}
	h.userConns[c.userID][c] = true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.userConns[c.userID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.userConns, c.userID)
		}
	}
}

func (h *hub) sendToUsers(userIDs []string, event string) {
	data, err := json.Marshal(wireEvent{Event: event})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		for c := range h.userConns[userID] {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// closeUser severs every open connection of one user. The client sees the
// connection drop and is expected to redial.
func (h *hub) closeUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.userConns[userID] {
		close(c.send)
	}
	delete(h.userConns, userID)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.userConns {
		for c := range conns {
			close(c.send)
			delete(conns, c)
		}
	}
	h.userConns = make(map[string]map[*client]bool)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
