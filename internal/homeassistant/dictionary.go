package homeassistant

import (
	"strings"

	"ruuvigw-bridge/internal/ruuvi"
)

// Descriptor holds the Home Assistant attributes advertised for one
// metric. Empty fields are left out of the discovery payload.
type Descriptor struct {
	DeviceClass string `yaml:"device_class" json:"device_class,omitempty"`
	Unit        string `yaml:"unit_of_measurement" json:"unit_of_measurement,omitempty"`
	StateClass  string `yaml:"state_class" json:"state_class,omitempty"`
}

// Dictionary maps metrics to their descriptors. A metric without an
// entry gets none of the attributes.
type Dictionary map[ruuvi.Metric]Descriptor

// DefaultDictionary returns the descriptors for the values the decoder
// produces. Units follow the decoded scale (Pa, mV, milli-g).
func DefaultDictionary() Dictionary {
	return Dictionary{
		ruuvi.MetricTemperature:   {DeviceClass: "temperature", Unit: "°C", StateClass: "measurement"},
		ruuvi.MetricHumidity:      {DeviceClass: "humidity", Unit: "%", StateClass: "measurement"},
		ruuvi.MetricPressure:      {DeviceClass: "pressure", Unit: "Pa", StateClass: "measurement"},
		ruuvi.MetricAccelerationX: {Unit: "mG", StateClass: "measurement"},
		ruuvi.MetricAccelerationY: {Unit: "mG", StateClass: "measurement"},
		ruuvi.MetricAccelerationZ: {Unit: "mG", StateClass: "measurement"},
		ruuvi.MetricBattery:       {DeviceClass: "voltage", Unit: "mV", StateClass: "measurement"},
		ruuvi.MetricTxPower:       {DeviceClass: "signal_strength", Unit: "dBm", StateClass: "measurement"},
		ruuvi.MetricRSSI:          {DeviceClass: "signal_strength", Unit: "dBm", StateClass: "measurement"},
	}
}

// Lookup returns the descriptor for m.
func (d Dictionary) Lookup(m ruuvi.Metric) (Descriptor, bool) {
	desc, ok := d[m]
	return desc, ok
}

// Merge returns a copy of d with the entries of over replacing whole
// descriptors.
func (d Dictionary) Merge(over Dictionary) Dictionary {
	out := make(Dictionary, len(d)+len(over))
	for m, desc := range d {
		out[m] = desc
	}
	for m, desc := range over {
		out[m] = desc
	}
	return out
}

// Labels maps device identifiers to human labels.
type Labels map[string]string

// NewLabels builds a label table. Keys may be given with or without
// colon separators, in any case.
func NewLabels(m map[string]string) Labels {
	out := make(Labels, len(m))
	for id, label := range m {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		out[labelKey(id)] = label
	}
	return out
}

func labelKey(id string) string {
	return strings.ToUpper(Token(strings.TrimSpace(id)))
}

// Resolve returns the configured label for device, or its token when
// none is configured.
func (l Labels) Resolve(device string) string {
	if label, ok := l[labelKey(device)]; ok {
		return label
	}
	return Token(device)
}
