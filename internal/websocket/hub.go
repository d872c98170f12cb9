package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

// EventHandler receives parsed inbound envelopes and disconnect
// notifications. The chat gateway implements it.
type EventHandler interface {
	HandleUserEvent(userID string, envelope models.Envelope)
	HandleUserDisconnect(userID string)
	HandleAdminEvent(adminID string, envelope models.Envelope)
	HandleAdminDisconnect(adminID string)
}

// message is an outbound frame addressed to one connection or to every
// authorized admin.
type message struct {
	targetID string // empty = admin broadcast
	toAdmins bool
	envelope models.Envelope
}

// Hub owns every WebSocket connection of this process: user sockets
// keyed by session id and admin sockets keyed by admin id. Delivery runs
// through a single loop so registration, unregistration and sends never
// race.
type Hub struct {
	clients map[string]*Client
	admins  map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *message
	register   chan *Client
	unregister chan *Client

	handler EventHandler

	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
	allowAll       bool
}

func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		admins:     make(map[string]*Client),
		broadcast:  make(chan *message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetHandler wires the gateway. Must be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// SetAllowedOrigins restricts browser upgrades to the given origins.
// Must be called before serving, like SetHandler.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.allowedOrigins = make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			h.allowAll = true
		}
		h.allowedOrigins[origin] = struct{}{}
	}
}

// checkOrigin applies the same origin policy as the HTTP CORS layer to
// the upgrade handshake. Requests without an Origin header come from
// non-browser clients and pass.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowAll {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	return ok
}

// Run processes registration and delivery. Meant to run on its own
// goroutine for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pool := h.clients
	if client.isAdmin {
		pool = h.admins
	}

	// A reconnect under the same id replaces the previous socket.
	if old, exists := pool[client.id]; exists {
		old.closeSend()
	}
	pool[client.id] = client

	logger.Debug("WebSocket client registered",
		"id", client.id,
		"admin", client.isAdmin,
		"totalUsers", len(h.clients),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	pool := h.clients
	if client.isAdmin {
		pool = h.admins
	}

	current, exists := pool[client.id]
	if exists && current == client {
		delete(pool, client.id)
		client.closeSend()
	}
	h.mu.Unlock()

	if !exists || current != client || h.handler == nil {
		return
	}

	// The disconnect handler emits back through the hub; running it on
	// the Run goroutine would starve the only broadcast consumer.
	if client.isAdmin {
		go h.handler.HandleAdminDisconnect(client.id)
	} else {
		go h.handler.HandleUserDisconnect(client.id)
	}
}

func (h *Hub) deliver(msg *message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.toAdmins {
		for _, admin := range h.admins {
			if !admin.Authorized() {
				continue
			}
			h.send(admin, msg.envelope)
		}
		return
	}

	if client, exists := h.clients[msg.targetID]; exists {
		h.send(client, msg.envelope)
	}
}

func (h *Hub) send(client *Client, envelope models.Envelope) {
	switch client.trySend(envelope) {
	case sendOK, sendClosed:
	case sendFull:
		// Slow consumer; drop the connection rather than block the hub.
		logger.Warn("Client send channel full, unregistering", "id", client.id)
		go func(c *Client) {
			h.unregister <- c
		}(client)
	}
}

// EmitToUser sends one event to a user connected to this process.
// Unknown users are dropped silently.
func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	envelope, ok := marshalEnvelope(event, payload)
	if !ok {
		return
	}
	h.broadcast <- &message{targetID: userID, envelope: envelope}
}

// EmitToAdmin sends one event to a single admin connection.
func (h *Hub) EmitToAdmin(adminID, event string, payload interface{}) {
	h.mu.RLock()
	admin, exists := h.admins[adminID]
	h.mu.RUnlock()

	if !exists {
		return
	}

	envelope, ok := marshalEnvelope(event, payload)
	if !ok {
		return
	}
	h.send(admin, envelope)
}

// BroadcastAdmins pushes one event to every authorized admin.
func (h *Hub) BroadcastAdmins(event string, payload interface{}) {
	envelope, ok := marshalEnvelope(event, payload)
	if !ok {
		return
	}
	h.broadcast <- &message{toAdmins: true, envelope: envelope}
}

// IsConnected reports whether the user's socket is attached here.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// AuthorizeAdmin marks an admin connection as subscribed.
func (h *Hub) AuthorizeAdmin(adminID string) {
	h.mu.RLock()
	admin, exists := h.admins[adminID]
	h.mu.RUnlock()

	if exists {
		admin.setAuthorized()
	}
}

// CloseAdmin forcibly disconnects an admin, used on token mismatch.
func (h *Hub) CloseAdmin(adminID string) {
	h.mu.RLock()
	admin, exists := h.admins[adminID]
	h.mu.RUnlock()

	if exists {
		admin.conn.Close()
	}
}

func marshalEnvelope(event string, payload interface{}) (models.Envelope, bool) {
	envelope := models.Envelope{Event: event}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Error("Failed to marshal payload", "event", event, "error", err)
			return envelope, false
		}
		envelope.Payload = data
	}
	return envelope, true
}
