package db

import (
	"database/sql"
	"errors"
	"fmt"

	"plantstation/internal/models"
)

type SensorReadingRepository struct {
	db *DB
}

func NewSensorReadingRepository(db *DB) *SensorReadingRepository {
	return &SensorReadingRepository{db: db}
}

// Insert appends a telemetry row and fills in the assigned id.
func (r *SensorReadingRepository) Insert(reading *models.SensorReading) error {
	result, err := r.db.Exec(
		`INSERT INTO sensor_readings (device_id, config_id, moisture, temperature, humidity, watered, recorded_on)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reading.DeviceID,
		reading.ConfigID,
		ptrToNullFloat(reading.Moisture),
		ptrToNullFloat(reading.Temperature),
		ptrToNullFloat(reading.Humidity),
		reading.Watered,
		reading.RecordedOn.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting sensor reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new sensor reading id: %w", err)
	}
	reading.ID = id

	return nil
}

func (r *SensorReadingRepository) FindByID(id int64) (*models.SensorReading, error) {
	row := r.db.QueryRow(
		`SELECT id, device_id, config_id, moisture, temperature, humidity, watered, recorded_on
		 FROM sensor_readings WHERE id = ?`,
		id,
	)
	return scanReading(row)
}

// ListByDevice returns the most recent readings for a device, newest first.
func (r *SensorReadingRepository) ListByDevice(deviceID int64, limit int) ([]*models.SensorReading, error) {
	rows, err := r.db.Query(
		`SELECT id, device_id, config_id, moisture, temperature, humidity, watered, recorded_on
		 FROM sensor_readings
		 WHERE device_id = ?
		 ORDER BY recorded_on DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sensor readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}

	return readings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*models.SensorReading, error) {
	var reading models.SensorReading
	var moisture, temperature, humidity sql.NullFloat64

	err := row.Scan(
		&reading.ID,
		&reading.DeviceID,
		&reading.ConfigID,
		&moisture,
		&temperature,
		&humidity,
		&reading.Watered,
		&reading.RecordedOn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sensor reading: %w", err)
	}

	reading.Moisture = nullFloatToPtr(moisture)
	reading.Temperature = nullFloatToPtr(temperature)
	reading.Humidity = nullFloatToPtr(humidity)

	return &reading, nil
}
