package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plantstation/internal/models"
)

// Factory settings applied to every device on registration.
const (
	DefaultMoistureThreshold = 50
	DefaultWaterVolumeML     = 100
	DefaultFrequencyMin      = 30
)

type DeviceRepository struct {
	db *DB
}

func NewDeviceRepository(db *DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create registers a device and its initial config row in one transaction,
// so a device can never exist without a current configuration.
func (r *DeviceRepository) Create(ownerID int64, serialNo, nickname string) (*models.Device, *models.DeviceConfig, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("starting device registration transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(
		`INSERT INTO devices (serial_no, nickname, owner_id, registered_on) VALUES (?, ?, ?, ?)`,
		serialNo, nickname, ownerID, now,
	)
	if err != nil {
		if mapped := mapUniqueConstraint(err); mapped != err {
			return nil, nil, mapped
		}
		return nil, nil, fmt.Errorf("creating device: %w", err)
	}

	deviceID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("reading new device id: %w", err)
	}

	result, err = tx.Exec(
		`INSERT INTO device_configs (device_id, moisture_threshold, water_volume_ml, frequency_min, recorded_on) VALUES (?, ?, ?, ?, ?)`,
		deviceID, DefaultMoistureThreshold, DefaultWaterVolumeML, DefaultFrequencyMin, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating initial device config: %w", err)
	}

	configID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("reading new config id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing device registration: %w", err)
	}

	device := &models.Device{
		ID:           deviceID,
		SerialNo:     serialNo,
		Nickname:     nickname,
		OwnerID:      ownerID,
		RegisteredOn: now,
	}
	config := &models.DeviceConfig{
		ID:                configID,
		DeviceID:          deviceID,
		MoistureThreshold: DefaultMoistureThreshold,
		WaterVolumeML:     DefaultWaterVolumeML,
		FrequencyMin:      DefaultFrequencyMin,
		RecordedOn:        now,
	}

	return device, config, nil
}

func (r *DeviceRepository) FindByID(id int64) (*models.Device, error) {
	return r.findOne(`SELECT id, serial_no, nickname, owner_id, registered_on FROM devices WHERE id = ?`, id)
}

func (r *DeviceRepository) FindBySerial(serialNo string) (*models.Device, error) {
	return r.findOne(`SELECT id, serial_no, nickname, owner_id, registered_on FROM devices WHERE serial_no = ?`, serialNo)
}

func (r *DeviceRepository) FindByOwner(ownerID int64) ([]*models.Device, error) {
	rows, err := r.db.Query(
		`SELECT id, serial_no, nickname, owner_id, registered_on FROM devices WHERE owner_id = ? ORDER BY registered_on`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.SerialNo, &d.Nickname, &d.OwnerID, &d.RegisteredOn); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, &d)
	}

	return devices, rows.Err()
}

func (r *DeviceRepository) findOne(query string, args ...any) (*models.Device, error) {
	var d models.Device

	err := r.db.QueryRow(query, args...).Scan(&d.ID, &d.SerialNo, &d.Nickname, &d.OwnerID, &d.RegisteredOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}

	return &d, nil
}
