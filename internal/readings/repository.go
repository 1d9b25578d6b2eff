package readings

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"ruuvigw-bridge/internal/homeassistant"
	"ruuvigw-bridge/internal/types"
)

//go:embed sql/upsert-device.sql
var upsertDeviceSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-devices.sql
var getDevicesSQL string

//go:embed sql/get-latest-readings.sql
var getLatestReadingsSQL string

//go:embed sql/get-readings.sql
var getReadingsSQL string

// tsLayout is fixed width so text order matches time order.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// Device is an archived device.
type Device struct {
	ID        string    `json:"id"`
	MAC       string    `json:"mac"`
	Gateway   string    `json:"gateway"`
	Label     string    `json:"label"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Readings  int       `json:"readings"`
}

type Repository interface {
	InsertObservation(ctx context.Context, obs types.Observation) error
	GetDevices(ctx context.Context) ([]Device, error)
	GetLatestReadings(ctx context.Context, deviceID string, limit int) ([]types.Telemetry, error)
	GetReadings(ctx context.Context, deviceID string, from time.Time, to time.Time, limit int) ([]types.Telemetry, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

// DeviceID is the archive key of a device: its identifier without
// separators, upper case.
func DeviceID(device string) string {
	return homeassistant.DeviceKey(device)
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return t2.UTC(), nil
	}
	return t, nil
}

func (r *repositoryImpl) InsertObservation(ctx context.Context, obs types.Observation) error {
	id := DeviceID(obs.Device)
	if id == "" {
		return fmt.Errorf("insert observation: empty device id")
	}
	ts := formatTS(obs.SeenAt)
	tel := obs.Telemetry()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertDeviceSQL, id, obs.Device, obs.Gateway, obs.Label, ts, ts); err != nil {
		return fmt.Errorf("upsert device %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, insertReadingSQL,
		id, obs.Gateway, tel.Format, ts, tel.RSSI,
		nullable(tel.Temperature), nullable(tel.Humidity), nullable(tel.Pressure),
		nullable(tel.AccelerationX), nullable(tel.AccelerationY), nullable(tel.AccelerationZ),
		nullable(tel.Battery), nullable(tel.TxPower),
		nullable(tel.MovementCounter), nullable(tel.SequenceCounter),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	return tx.Commit()
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *repositoryImpl) GetDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, getDevicesSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close devices rows", "error", err)
		}
	}()

	var out []Device
	for rows.Next() {
		var (
			d                   Device
			firstSeen, lastSeen string
		)
		if err := rows.Scan(&d.ID, &d.MAC, &d.Gateway, &d.Label, &firstSeen, &lastSeen, &d.Readings); err != nil {
			return nil, err
		}
		if d.FirstSeen, err = parseTS(firstSeen); err != nil {
			return nil, err
		}
		if d.LastSeen, err = parseTS(lastSeen); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetLatestReadings(ctx context.Context, deviceID string, limit int) ([]types.Telemetry, error) {
	rows, err := r.db.QueryContext(ctx, getLatestReadingsSQL, DeviceID(deviceID), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest readings rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

func (r *repositoryImpl) GetReadings(ctx context.Context, deviceID string, from time.Time, to time.Time, limit int) ([]types.Telemetry, error) {
	rows, err := r.db.QueryContext(ctx, getReadingsSQL, DeviceID(deviceID), formatTS(from), formatTS(to), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]types.Telemetry, error) {
	out := []types.Telemetry{}
	for rows.Next() {
		var (
			t                  types.Telemetry
			ts                 string
			temp, hum, press   sql.NullFloat64
			ax, ay, az         sql.NullFloat64
			battery, txPower   sql.NullFloat64
			movement, sequence sql.NullInt64
		)
		if err := rows.Scan(
			&t.Device, &t.Gateway, &t.Label, &t.Format, &ts, &t.RSSI,
			&temp, &hum, &press, &ax, &ay, &az, &battery, &txPower, &movement, &sequence,
		); err != nil {
			return nil, err
		}
		parsed, err := parseTS(ts)
		if err != nil {
			return nil, err
		}
		t.Timestamp = parsed
		t.Temperature = floatPtr(temp)
		t.Humidity = floatPtr(hum)
		t.Pressure = floatPtr(press)
		t.AccelerationX = floatPtr(ax)
		t.AccelerationY = floatPtr(ay)
		t.AccelerationZ = floatPtr(az)
		t.Battery = floatPtr(battery)
		t.TxPower = floatPtr(txPower)
		t.MovementCounter = intPtr(movement)
		t.SequenceCounter = intPtr(sequence)
		out = append(out, t)
	}
	return out, rows.Err()
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
