package models

import "time"

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	RegisteredOn time.Time  `json:"registeredOn"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

type Device struct {
	ID           int64     `json:"id"`
	SerialNo     string    `json:"serialNo"`
	Nickname     string    `json:"nickname"`
	OwnerID      int64     `json:"-"`
	RegisteredOn time.Time `json:"registeredOn"`
}

// DeviceConfig rows are append-only; the current configuration for a device
// is the row with the latest recorded_on, ties broken by highest id.
type DeviceConfig struct {
	ID                int64     `json:"id"`
	DeviceID          int64     `json:"deviceId"`
	MoistureThreshold int       `json:"moistureThreshold"`
	WaterVolumeML     int       `json:"waterVolumeMl"`
	FrequencyMin      int       `json:"frequencyMin"`
	RecordedOn        time.Time `json:"recordedOn"`
}

type SensorReading struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"deviceId"`
	ConfigID    int64     `json:"configId"`
	Moisture    *float64  `json:"moisture"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Watered     bool      `json:"watered"`
	RecordedOn  time.Time `json:"recordedOn"`
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}
