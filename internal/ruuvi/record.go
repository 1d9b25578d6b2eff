package ruuvi

import "fmt"

// Metric names a single value carried by a decoded record. The string
// form is the key used on outgoing topics, so it must stay stable.
type Metric string

const (
	MetricTemperature     Metric = "temperature"
	MetricHumidity        Metric = "humidity"
	MetricPressure        Metric = "pressure"
	MetricAccelerationX   Metric = "accelerationX"
	MetricAccelerationY   Metric = "accelerationY"
	MetricAccelerationZ   Metric = "accelerationZ"
	MetricBattery         Metric = "battery"
	MetricTxPower         Metric = "txPower"
	MetricMovementCounter Metric = "movementCounter"
	MetricSequenceCounter Metric = "sequenceCounter"

	// Context metrics are injected by the caller, not decoded.
	MetricMAC  Metric = "mac"
	MetricRSSI Metric = "rssi"
)

// Metrics lists every known metric in canonical order.
var Metrics = []Metric{
	MetricTemperature,
	MetricHumidity,
	MetricPressure,
	MetricAccelerationX,
	MetricAccelerationY,
	MetricAccelerationZ,
	MetricBattery,
	MetricTxPower,
	MetricMovementCounter,
	MetricSequenceCounter,
	MetricMAC,
	MetricRSSI,
}

// ParseMetric returns the metric with the given name.
func ParseMetric(s string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Format is the one-byte data format discriminant.
type Format byte

const (
	FormatRAWv1 Format = 0x03
	FormatRAWv2 Format = 0x05
)

func (f Format) String() string {
	switch f {
	case FormatRAWv1:
		return "RAWv1"
	case FormatRAWv2:
		return "RAWv2"
	default:
		return fmt.Sprintf("0x%02X", byte(f))
	}
}

// Reading is one decoded metric value.
type Reading struct {
	Metric Metric
	Value  float64
}

// Record is the result of a successful decode. Readings keep the order
// the format defines them in; which metrics are present depends on the
// format and must not be padded.
type Record struct {
	Format   Format
	Readings []Reading

	// MAC and RSSI are copied from the envelope by the caller.
	MAC  string
	RSSI int
}

// WithContext returns a copy of r carrying the device identifier and
// signal strength of the advertisement it came from.
func (r Record) WithContext(mac string, rssi int) Record {
	out := r
	out.Readings = append([]Reading(nil), r.Readings...)
	out.MAC = mac
	out.RSSI = rssi
	return out
}

// Value returns the decoded value for m.
func (r Record) Value(m Metric) (float64, bool) {
	if m == MetricRSSI && r.MAC != "" {
		return float64(r.RSSI), true
	}
	for _, rd := range r.Readings {
		if rd.Metric == m {
			return rd.Value, true
		}
	}
	return 0, false
}

// Has reports whether m is present in the record.
func (r Record) Has(m Metric) bool {
	if m == MetricMAC {
		return r.MAC != ""
	}
	_, ok := r.Value(m)
	return ok
}

// Metrics returns the keys present in the record: decoded metrics first,
// then mac and rssi when context was attached.
func (r Record) Metrics() []Metric {
	out := make([]Metric, 0, len(r.Readings)+2)
	for _, rd := range r.Readings {
		out = append(out, rd.Metric)
	}
	if r.MAC != "" {
		out = append(out, MetricMAC, MetricRSSI)
	}
	return out
}
