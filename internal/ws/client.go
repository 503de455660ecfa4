package ws

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is a single websocket subscriber. Subscribers never send anything
// meaningful upstream; the read pump only services control frames.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan *ReadingEvent
	sessionID string
	userID    int64
	deviceIDs map[int64]struct{}
}

// NewClient registers a subscriber for the given device ids. The entitlement
// set is fixed at connect time; reconnect to pick up newly registered devices.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64, deviceIDs map[int64]struct{}) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *ReadingEvent, 16),
		sessionID: uuid.New().String(),
		userID:    userID,
		deviceIDs: deviceIDs,
	}
	hub.register <- c
	return c
}

func (c *Client) wants(deviceID int64) bool {
	_, ok := c.deviceIDs[deviceID]
	return ok
}

func (c *Client) ReadPump() {
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("stream read error", "component", "ws", "session_id", c.sessionID, "error", err)
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
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
