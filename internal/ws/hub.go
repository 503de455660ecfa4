package ws

import (
	"log/slog"

	"plantstation/internal/models"
)

const broadcastBufferSize = 64

// ReadingEvent is the wire frame pushed to stream subscribers.
type ReadingEvent struct {
	Type    string                `json:"type"`
	Reading *models.SensorReading `json:"reading"`
}

// Hub fans ingested sensor readings out to websocket subscribers. Each
// subscriber only receives readings for devices it is entitled to see.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *models.SensorReading
	shutdown   chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *models.SensorReading, broadcastBufferSize),
		shutdown:   make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			slog.Info("stream subscriber connected", "component", "ws", "session_id", client.sessionID, "user_id", client.userID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				slog.Info("stream subscriber disconnected", "component", "ws", "session_id", client.sessionID)
			}

		case reading := <-h.broadcast:
			event := &ReadingEvent{Type: "reading", Reading: reading}
			for client := range h.clients {
				if !client.wants(reading.DeviceID) {
					continue
				}
				select {
				case client.send <- event:
				default:
					// Slow consumer: drop it rather than block ingestion.
					delete(h.clients, client)
					close(client.send)
					slog.Warn("dropping slow stream subscriber", "component", "ws", "session_id", client.sessionID)
				}
			}

		case <-h.shutdown:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// Publish hands a freshly ingested reading to the hub. Never blocks the
// ingestion path; when the buffer is full the frame is dropped.
func (h *Hub) Publish(reading *models.SensorReading) {
	select {
	case h.broadcast <- reading:
	default:
		slog.Warn("reading broadcast buffer full, dropping frame", "component", "ws", "reading_id", reading.ID)
	}
}

func (h *Hub) Shutdown() {
	close(h.shutdown)
}
