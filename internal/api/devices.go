package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plantstation/internal/db"
	"plantstation/internal/models"
)

const (
	defaultReadingsLimit = 50
	maxReadingsLimit     = 500
)

type DeviceHandler struct {
	devices  *db.DeviceRepository
	configs  *db.DeviceConfigRepository
	readings *db.SensorReadingRepository
}

func NewDeviceHandler(devices *db.DeviceRepository, configs *db.DeviceConfigRepository, readings *db.SensorReadingRepository) *DeviceHandler {
	return &DeviceHandler{devices: devices, configs: configs, readings: readings}
}

// GET /api/v1/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == 0 {
		unauthorized(w, "User not found in context")
		return
	}

	devices, err := h.devices.FindByOwner(userID)
	if err != nil {
		slog.Error("error listing devices", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if devices == nil {
		devices = []*models.Device{}
	}

	writeJSON(w, http.StatusOK, devices)
}

// POST /api/v1/devices
type NewDeviceRequest struct {
	SerialNo string `json:"serialNo" validate:"required,min=2,max=30"`
	Nickname string `json:"nickname" validate:"required,max=255"`
}

type DeviceSettingsResponse struct {
	Device   *models.Device       `json:"device"`
	Settings *models.DeviceConfig `json:"settings"`
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == 0 {
		unauthorized(w, "User not found in context")
		return
	}

	var req NewDeviceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	nickname := sanitizeDisplayString(req.Nickname)
	if nickname == "" {
		badRequest(w, "nickname is required")
		return
	}

	device, config, err := h.devices.Create(userID, req.SerialNo, nickname)
	if errors.Is(err, db.ErrDuplicateSerial) {
		conflict(w, "Device already registered!")
		return
	}
	if err != nil {
		slog.Error("error creating device", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, DeviceSettingsResponse{Device: device, Settings: config})
}

// GET /api/v1/devices/{deviceID}/settings
func (h *DeviceHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	device, ok := h.loadOwnedDevice(w, r)
	if !ok {
		return
	}

	config, err := h.configs.CurrentByDeviceID(device.ID)
	if errors.Is(err, db.ErrNotFound) {
		// Devices always get a config row at registration, so this would
		// indicate a broken invariant rather than a user mistake.
		slog.Error("device has no config row", "device_id", device.ID)
		internalError(w)
		return
	}
	if err != nil {
		slog.Error("error resolving current config", "error", err, "device_id", device.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, DeviceSettingsResponse{Device: device, Settings: config})
}

// PUT /api/v1/devices/{deviceID}/settings
type DeviceConfigRequest struct {
	MoistureThreshold int `json:"moistureThreshold" validate:"required,min=1,max=100"`
	WaterVolumeML     int `json:"waterVolumeMl" validate:"required,min=10,max=1000"`
	FrequencyMin      int `json:"frequencyMin" validate:"required,min=5,max=180"`
}

func (h *DeviceHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	device, ok := h.loadOwnedDevice(w, r)
	if !ok {
		return
	}

	var req DeviceConfigRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	config, err := h.configs.Insert(device.ID, req.MoistureThreshold, req.WaterVolumeML, req.FrequencyMin)
	if err != nil {
		slog.Error("error inserting device config", "error", err, "device_id", device.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, DeviceSettingsResponse{Device: device, Settings: config})
}

// GET /api/v1/devices/{deviceID}/readings
func (h *DeviceHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	device, ok := h.loadOwnedDevice(w, r)
	if !ok {
		return
	}

	limit := defaultReadingsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxReadingsLimit {
			badRequest(w, "Query parameter 'limit' must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}

	readings, err := h.readings.ListByDevice(device.ID, limit)
	if err != nil {
		slog.Error("error listing readings", "error", err, "device_id", device.ID)
		internalError(w)
		return
	}
	if readings == nil {
		readings = []*models.SensorReading{}
	}

	writeJSON(w, http.StatusOK, readings)
}

// loadOwnedDevice resolves {deviceID} and enforces ownership. A device owned
// by somebody else is reported as not found, not as forbidden.
func (h *DeviceHandler) loadOwnedDevice(w http.ResponseWriter, r *http.Request) (*models.Device, bool) {
	userID := GetUserID(r)
	if userID == 0 {
		unauthorized(w, "User not found in context")
		return nil, false
	}

	deviceID, err := strconv.ParseInt(chi.URLParam(r, "deviceID"), 10, 64)
	if err != nil {
		badRequest(w, "Invalid device id")
		return nil, false
	}

	device, err := h.devices.FindByID(deviceID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Device not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error finding device", "error", err, "device_id", deviceID)
		internalError(w)
		return nil, false
	}

	if device.OwnerID != userID {
		notFound(w, "Device not found")
		return nil, false
	}

	return device, true
}
