package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"plantstation/internal/db"
	"plantstation/internal/models"
	"plantstation/internal/ws"
)

// Device-facing endpoints speak the wire format the deployed firmware was
// built against: snake_case fields, microsecond timestamps and the literal
// 404 bodies it matches on. Do not "fix" these shapes.

const (
	deviceNotFoundMessage = "404. Device not found :("
	configNotFoundMessage = "404. Config not found :("
	recordNotFoundMessage = "404. Record not found :("

	readingTimeLayout = "2006-01-02T15:04:05.000000"
)

type DeviceAPIHandler struct {
	devices  *db.DeviceRepository
	configs  *db.DeviceConfigRepository
	readings *db.SensorReadingRepository
	hub      *ws.Hub
}

func NewDeviceAPIHandler(devices *db.DeviceRepository, configs *db.DeviceConfigRepository, readings *db.SensorReadingRepository, hub *ws.Hub) *DeviceAPIHandler {
	return &DeviceAPIHandler{devices: devices, configs: configs, readings: readings, hub: hub}
}

type deviceJSON struct {
	DeviceID int64  `json:"device_id"`
	SerialNo string `json:"serial_no"`
	Nickname string `json:"nickname"`
}

type settingsJSON struct {
	ConfigID          int64  `json:"config_id"`
	MoistureThreshold int    `json:"moisture_threshold"`
	WaterVolumeML     int    `json:"water_volume_ml"`
	FrequencyMin      int    `json:"frequency_min"`
	RecordedOn        string `json:"recorded_on"`
}

type readingJSON struct {
	ID          int64    `json:"id"`
	DeviceID    int64    `json:"device_id"`
	ConfigID    int64    `json:"config_id"`
	Moisture    *float64 `json:"moisture"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Watered     bool     `json:"watered"`
	RecordedOn  string   `json:"recorded_on"`
}

// GET /api/v1/settings?serial=<serial_no>
func (h *DeviceAPIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	serial := r.URL.Query().Get("serial")

	device, config, err := h.configs.CurrentBySerial(serial)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": deviceNotFoundMessage})
		return
	}
	if err != nil {
		slog.Error("error resolving device settings", "error", err, "serial", serial)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": deviceJSON{
			DeviceID: device.ID,
			SerialNo: device.SerialNo,
			Nickname: device.Nickname,
		},
		"settings": settingsJSON{
			ConfigID:          config.ID,
			MoistureThreshold: config.MoistureThreshold,
			WaterVolumeML:     config.WaterVolumeML,
			FrequencyMin:      config.FrequencyMin,
			RecordedOn:        config.RecordedOn.UTC().Format(readingTimeLayout),
		},
	})
}

// POST /api/v1/readings
type createReadingRequest struct {
	DeviceID    int64    `json:"device_id" validate:"required"`
	ConfigID    int64    `json:"config_id" validate:"required"`
	Moisture    *float64 `json:"moisture"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Watered     bool     `json:"watered"`
	RecordedOn  string   `json:"recorded_on" validate:"required"`
}

func (h *DeviceAPIHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	var req createReadingRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	recordedOn, err := parseReadingTime(req.RecordedOn)
	if err != nil {
		badRequest(w, "recorded_on must be an ISO-8601 timestamp with microseconds")
		return
	}

	if _, err := h.devices.FindByID(req.DeviceID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": deviceNotFoundMessage})
			return
		}
		slog.Error("error finding device", "error", err, "device_id", req.DeviceID)
		internalError(w)
		return
	}

	if _, err := h.configs.FindByID(req.ConfigID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": configNotFoundMessage})
			return
		}
		slog.Error("error finding config", "error", err, "config_id", req.ConfigID)
		internalError(w)
		return
	}

	reading := &models.SensorReading{
		DeviceID:    req.DeviceID,
		ConfigID:    req.ConfigID,
		Moisture:    req.Moisture,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Watered:     req.Watered,
		RecordedOn:  recordedOn,
	}
	if err := h.readings.Insert(reading); err != nil {
		slog.Error("error inserting reading", "error", err, "device_id", req.DeviceID)
		internalError(w)
		return
	}

	h.hub.Publish(reading)

	w.Header().Set("Location", fmt.Sprintf("/api/v1/readings?id=%d", reading.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Success, record added!"})
}

// GET /api/v1/readings?id=<id>
func (h *DeviceAPIHandler) GetReading(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": recordNotFoundMessage})
		return
	}

	reading, err := h.readings.FindByID(id)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": recordNotFoundMessage})
		return
	}
	if err != nil {
		slog.Error("error finding reading", "error", err, "reading_id", id)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, readingJSON{
		ID:          reading.ID,
		DeviceID:    reading.DeviceID,
		ConfigID:    reading.ConfigID,
		Moisture:    reading.Moisture,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Watered:     reading.Watered,
		RecordedOn:  reading.RecordedOn.UTC().Format(readingTimeLayout),
	})
}

// parseReadingTime accepts the firmware's naive microsecond timestamps and
// falls back to RFC 3339 for newer senders.
func parseReadingTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
