package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plantstation/internal/models"
)

type DeviceConfigRepository struct {
	db *DB
}

func NewDeviceConfigRepository(db *DB) *DeviceConfigRepository {
	return &DeviceConfigRepository{db: db}
}

// Insert appends a new config row. Prior rows are never mutated or deleted;
// the history stays around for audit and analytics.
func (r *DeviceConfigRepository) Insert(deviceID int64, moistureThreshold, waterVolumeML, frequencyMin int) (*models.DeviceConfig, error) {
	now := time.Now().UTC()

	result, err := r.db.Exec(
		`INSERT INTO device_configs (device_id, moisture_threshold, water_volume_ml, frequency_min, recorded_on) VALUES (?, ?, ?, ?, ?)`,
		deviceID, moistureThreshold, waterVolumeML, frequencyMin, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting device config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading new config id: %w", err)
	}

	return &models.DeviceConfig{
		ID:                id,
		DeviceID:          deviceID,
		MoistureThreshold: moistureThreshold,
		WaterVolumeML:     waterVolumeML,
		FrequencyMin:      frequencyMin,
		RecordedOn:        now,
	}, nil
}

// CurrentByDeviceID resolves the current config: latest recorded_on, with
// identical timestamps broken by highest row id so results are deterministic.
// The settings form and the device-facing API both go through this query.
func (r *DeviceConfigRepository) CurrentByDeviceID(deviceID int64) (*models.DeviceConfig, error) {
	var c models.DeviceConfig

	err := r.db.QueryRow(
		`SELECT id, device_id, moisture_threshold, water_volume_ml, frequency_min, recorded_on
		 FROM device_configs
		 WHERE device_id = ?
		 ORDER BY recorded_on DESC, id DESC
		 LIMIT 1`,
		deviceID,
	).Scan(&c.ID, &c.DeviceID, &c.MoistureThreshold, &c.WaterVolumeML, &c.FrequencyMin, &c.RecordedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying current device config: %w", err)
	}

	return &c, nil
}

// CurrentBySerial resolves a device by serial number together with its
// current config, for the device-facing settings endpoint.
func (r *DeviceConfigRepository) CurrentBySerial(serialNo string) (*models.Device, *models.DeviceConfig, error) {
	var d models.Device
	var c models.DeviceConfig

	err := r.db.QueryRow(
		`SELECT d.id, d.serial_no, d.nickname, d.owner_id, d.registered_on,
		        c.id, c.device_id, c.moisture_threshold, c.water_volume_ml, c.frequency_min, c.recorded_on
		 FROM devices d
		 JOIN device_configs c ON c.device_id = d.id
		 WHERE d.serial_no = ?
		 ORDER BY c.recorded_on DESC, c.id DESC
		 LIMIT 1`,
		serialNo,
	).Scan(
		&d.ID, &d.SerialNo, &d.Nickname, &d.OwnerID, &d.RegisteredOn,
		&c.ID, &c.DeviceID, &c.MoistureThreshold, &c.WaterVolumeML, &c.FrequencyMin, &c.RecordedOn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying device settings by serial: %w", err)
	}

	return &d, &c, nil
}

func (r *DeviceConfigRepository) FindByID(id int64) (*models.DeviceConfig, error) {
	var c models.DeviceConfig

	err := r.db.QueryRow(
		`SELECT id, device_id, moisture_threshold, water_volume_ml, frequency_min, recorded_on FROM device_configs WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.DeviceID, &c.MoistureThreshold, &c.WaterVolumeML, &c.FrequencyMin, &c.RecordedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device config: %w", err)
	}

	return &c, nil
}
