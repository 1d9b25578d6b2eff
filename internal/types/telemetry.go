package types

import (
	"time"

	"ruuvigw-bridge/internal/ruuvi"
)

// Observation is one decoded advertisement that produced a state update.
type Observation struct {
	Gateway string
	Device  string
	Label   string
	SeenAt  time.Time
	Record  ruuvi.Record
}

// Telemetry is the flat JSON form of an Observation handed to sinks.
type Telemetry struct {
	Gateway         string    `json:"gateway"`
	Device          string    `json:"device"`
	Label           string    `json:"label,omitempty"`
	Format          string    `json:"format"`
	Timestamp       time.Time `json:"timestamp"`
	RSSI            int       `json:"rssi"`
	Temperature     *float64  `json:"temperature_c,omitempty"`
	Humidity        *float64  `json:"humidity_pct,omitempty"`
	Pressure        *float64  `json:"pressure_pa,omitempty"`
	AccelerationX   *float64  `json:"acceleration_x_mg,omitempty"`
	AccelerationY   *float64  `json:"acceleration_y_mg,omitempty"`
	AccelerationZ   *float64  `json:"acceleration_z_mg,omitempty"`
	Battery         *float64  `json:"battery_mv,omitempty"`
	TxPower         *float64  `json:"tx_power_dbm,omitempty"`
	MovementCounter *int      `json:"movement_counter,omitempty"`
	SequenceCounter *int      `json:"sequence_counter,omitempty"`
}

// Telemetry flattens o. Metrics the record does not carry stay nil.
func (o Observation) Telemetry() Telemetry {
	rec := o.Record
	t := Telemetry{
		Gateway:   o.Gateway,
		Device:    o.Device,
		Label:     o.Label,
		Format:    rec.Format.String(),
		Timestamp: o.SeenAt,
		RSSI:      rec.RSSI,
	}

	float := func(m ruuvi.Metric) *float64 {
		if v, ok := rec.Value(m); ok {
			return &v
		}
		return nil
	}
	count := func(m ruuvi.Metric) *int {
		if v, ok := rec.Value(m); ok {
			n := int(v)
			return &n
		}
		return nil
	}

	t.Temperature = float(ruuvi.MetricTemperature)
	t.Humidity = float(ruuvi.MetricHumidity)
	t.Pressure = float(ruuvi.MetricPressure)
	t.AccelerationX = float(ruuvi.MetricAccelerationX)
	t.AccelerationY = float(ruuvi.MetricAccelerationY)
	t.AccelerationZ = float(ruuvi.MetricAccelerationZ)
	t.Battery = float(ruuvi.MetricBattery)
	t.TxPower = float(ruuvi.MetricTxPower)
	t.MovementCounter = count(ruuvi.MetricMovementCounter)
	t.SequenceCounter = count(ruuvi.MetricSequenceCounter)
	return t
}

// Fields returns the numeric metrics of o keyed by metric name, for sinks
// that store one column per metric. Context metrics are excluded.
func (o Observation) Fields() map[string]any {
	out := make(map[string]any, len(o.Record.Readings))
	for _, rd := range o.Record.Readings {
		out[string(rd.Metric)] = rd.Value
	}
	return out
}
