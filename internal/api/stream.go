package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"plantstation/internal/auth"
	"plantstation/internal/db"
	"plantstation/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler upgrades dashboard clients onto the live readings feed.
type StreamHandler struct {
	hub     *ws.Hub
	tokens  *auth.TokenService
	devices *db.DeviceRepository
}

func NewStreamHandler(hub *ws.Hub, tokens *auth.TokenService, devices *db.DeviceRepository) *StreamHandler {
	return &StreamHandler{hub: hub, tokens: tokens, devices: devices}
}

// GET /ws/readings?token=<access_token>[&serial=<serial_no>]
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "Missing token")
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		unauthorized(w, "Invalid or expired token")
		return
	}

	deviceIDs := make(map[int64]struct{})
	if serial := r.URL.Query().Get("serial"); serial != "" {
		device, err := h.devices.FindBySerial(serial)
		if errors.Is(err, db.ErrNotFound) || (err == nil && device.OwnerID != claims.UserID) {
			notFound(w, "Device not found")
			return
		}
		if err != nil {
			slog.Error("error finding device", "error", err, "serial", serial)
			internalError(w)
			return
		}
		deviceIDs[device.ID] = struct{}{}
	} else {
		devices, err := h.devices.FindByOwner(claims.UserID)
		if err != nil {
			slog.Error("error listing devices", "error", err, "user_id", claims.UserID)
			internalError(w)
			return
		}
		for _, device := range devices {
			deviceIDs[device.ID] = struct{}{}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID, deviceIDs)

	go client.WritePump()
	go client.ReadPump()
}
