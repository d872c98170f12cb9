package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Image payloads arrive base64-encoded,
	// so the cap sits above the raw image limit.
	maxMessageSize = 2 << 20
)

// sendResult outcome of a non-blocking enqueue on a client's channel.
type sendResult int

const (
	sendOK sendResult = iota
	sendFull
	sendClosed
)

// Client one WebSocket connection, user or admin.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan models.Envelope
	id      string
	isAdmin bool

	sendMu     sync.Mutex
	sendClosed bool

	authMu     sync.Mutex
	authorized bool
}

func newClient(hub *Hub, conn *websocket.Conn, id string, isAdmin bool) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan models.Envelope, 256),
		id:      id,
		isAdmin: isAdmin,
	}
}

// Authorized reports whether an admin connection has subscribed with a
// valid token. User connections are never authorized.
func (c *Client) Authorized() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authorized
}

func (c *Client) setAuthorized() {
	c.authMu.Lock()
	c.authorized = true
	c.authMu.Unlock()
}

// trySend enqueues without blocking. The mutex pairs with closeSend so
// a send can never hit a closed channel.
func (c *Client) trySend(envelope models.Envelope) sendResult {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return sendClosed
	}
	select {
	case c.send <- envelope:
		return sendOK
	default:
		return sendFull
	}
}

// closeSend closes the outbound channel exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// readPump parses inbound envelopes and hands them to the event
// handler. Malformed frames get a BAD_REQUEST reply instead of killing
// the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", "id", c.id, "error", err)
			}
			break
		}

		var envelope models.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
			c.trySend(models.Envelope{
				Event:   models.EventSystemError,
				Payload: mustMarshal(models.SystemErrorPayload{Code: models.ErrCodeBadRequest, Message: "Invalid payload."}),
			})
			continue
		}

		if c.hub.handler == nil {
			continue
		}
		if c.isAdmin {
			c.hub.handler.HandleAdminEvent(c.id, envelope)
		} else {
			c.hub.handler.HandleUserEvent(c.id, envelope)
		}
	}
}

// writePump forwards envelopes from the hub to the peer and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case envelope, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(envelope)
			if err != nil {
				logger.Error("Failed to marshal envelope", "id", c.id, "error", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Failed to write message", "id", c.id, "error", err)
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

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// ServeUser upgrades the request and attaches a user connection under
// the given session id.
func ServeUser(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) error {
	return serve(hub, w, r, userID, false)
}

// ServeAdmin upgrades the request and attaches an admin connection.
func ServeAdmin(hub *Hub, w http.ResponseWriter, r *http.Request, adminID string) error {
	return serve(hub, w, r, adminID, true)
}

func serve(hub *Hub, w http.ResponseWriter, r *http.Request, id string, isAdmin bool) error {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket connection", "error", err)
		return err
	}

	client := newClient(hub, conn, id, isAdmin)
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}
