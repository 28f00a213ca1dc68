// Package feed broadcasts rendered build notifications to websocket clients.
package feed

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rawci/shared/chat"
)

type client struct {
	conn     *websocket.Conn
	clientID string
	mu       sync.Mutex
}

// Hub is a chat transport whose audience is whoever is connected to /ws.
type Hub struct {
	clients      map[string]*client
	clientsMutex sync.RWMutex
	upgrader     websocket.Upgrader
	Now          func() time.Time
}

// FeedMessage is what clients receive.
type FeedMessage struct {
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
	Time        time.Time         `json:"time"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		Now: time.Now,
	}
}

func (h *Hub) Name() string { return "websocket" }

// HandleWebSocket upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ Failed to upgrade connection: %v", err)
		return
	}

	c := &client{conn: conn, clientID: clientID}
	h.clientsMutex.Lock()
	h.clients[clientID] = c
	h.clientsMutex.Unlock()
	log.Printf("📡 feed client %s connected", clientID)

	defer func() {
		h.clientsMutex.Lock()
		if h.clients[clientID] == c {
			delete(h.clients, clientID)
		}
		h.clientsMutex.Unlock()
		conn.Close()
		log.Printf("📡 feed client %s disconnected", clientID)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket error: %v", err)
			}
			return
		}
	}
}

// Send broadcasts msg to every connected client. Slow or broken clients are
// logged and cleaned up by their read loop.
func (h *Hub) Send(_ context.Context, msg chat.Message) error {
	payload := FeedMessage{Type: "build", Text: msg.Text, Attachments: msg.Attachments, Time: h.Now()}

	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for id, c := range h.clients {
		c.mu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := c.conn.WriteJSON(payload)
		c.mu.Unlock()
		if err != nil {
			log.Printf("⚠️ Failed to send message to client %s: %v", id, err)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}
