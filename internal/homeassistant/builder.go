// Package homeassistant builds the MQTT messages Home Assistant consumes:
// per-metric state updates, retained discovery config and gateway
// availability.
package homeassistant

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ruuvigw-bridge/internal/ruuvi"
)

const (
	DefaultStateNamespace  = "ruuvigw"
	DefaultDiscoveryPrefix = "homeassistant"

	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"

	objectPrefix = "ruuvitag"
)

// Message is one outgoing MQTT publication.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// DeviceInfo is the device registry block embedded in every discovery
// payload. All entities of one gateway share it, so HA groups them under
// the gateway's device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// SensorConfig is the JSON payload of a sensor discovery message.
type SensorConfig struct {
	DeviceClass       string     `json:"device_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Name              string     `json:"name"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	UniqueID          string     `json:"unique_id"`
	Device            DeviceInfo `json:"device"`
}

// NewDeviceInfo returns the registry block for a gateway.
func NewDeviceInfo(gateway string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{gateway},
		Name:         "RuuviGW",
		Manufacturer: "Ruuvi",
		Model:        "RuuviGateway",
	}
}

// Token is the device identifier with separators removed, as used in
// topics and unique ids.
func Token(device string) string {
	return strings.ReplaceAll(device, ":", "")
}

// DeviceKey identifies a device independent of MAC case and separators.
func DeviceKey(device string) string {
	return strings.ToUpper(Token(strings.TrimSpace(device)))
}

// Builder renders records into messages. The zero value uses the default
// namespace and prefix with an empty dictionary.
type Builder struct {
	StateNamespace  string
	DiscoveryPrefix string
	Dictionary      Dictionary
	Labels          Labels
}

// NewBuilder returns a Builder with the default topics and dictionary.
func NewBuilder(labels Labels) *Builder {
	return &Builder{
		StateNamespace:  DefaultStateNamespace,
		DiscoveryPrefix: DefaultDiscoveryPrefix,
		Dictionary:      DefaultDictionary(),
		Labels:          labels,
	}
}

func (b *Builder) namespace() string {
	if b.StateNamespace == "" {
		return DefaultStateNamespace
	}
	return b.StateNamespace
}

func (b *Builder) prefix() string {
	if b.DiscoveryPrefix == "" {
		return DefaultDiscoveryPrefix
	}
	return b.DiscoveryPrefix
}

// ObjectID is the entity id of one metric of one device.
func ObjectID(token string, m ruuvi.Metric) string {
	return objectPrefix + "_" + token + "_" + string(m)
}

func (b *Builder) StateTopic(token string, m ruuvi.Metric) string {
	return b.namespace() + "/sensor/" + ObjectID(token, m) + "/state"
}

func (b *Builder) ConfigTopic(token string, m ruuvi.Metric) string {
	return b.prefix() + "/sensor/" + ObjectID(token, m) + "/config"
}

func (b *Builder) AvailabilityTopic(gateway string) string {
	return b.namespace() + "/" + gateway + "/status"
}

// Label resolves the display label of device.
func (b *Builder) Label(device string) string {
	return b.Labels.Resolve(device)
}

// State returns one state message per metric present in rec.
func (b *Builder) State(device string, rec ruuvi.Record) []Message {
	token := Token(device)
	metrics := rec.Metrics()
	out := make([]Message, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, Message{
			Topic:   b.StateTopic(token, m),
			Payload: []byte(statePayload(rec, m)),
		})
	}
	return out
}

func statePayload(rec ruuvi.Record, m ruuvi.Metric) string {
	switch m {
	case ruuvi.MetricMAC:
		return rec.MAC
	case ruuvi.MetricRSSI:
		return strconv.Itoa(rec.RSSI)
	}
	v, _ := rec.Value(m)
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Discovery returns one retained config message per metric present in
// rec.
func (b *Builder) Discovery(gateway, device string, rec ruuvi.Record) ([]Message, error) {
	token := Token(device)
	label := b.Label(device)
	dev := NewDeviceInfo(gateway)
	availability := b.AvailabilityTopic(gateway)

	metrics := rec.Metrics()
	out := make([]Message, 0, len(metrics))
	for _, m := range metrics {
		desc, _ := b.Dictionary.Lookup(m)
		cfg := SensorConfig{
			DeviceClass:       desc.DeviceClass,
			UnitOfMeasurement: desc.Unit,
			StateClass:        desc.StateClass,
			Name:              fmt.Sprintf("Ruuvitag %s %s", label, m),
			StateTopic:        b.StateTopic(token, m),
			AvailabilityTopic: availability,
			UniqueID:          ObjectID(token, m),
			Device:            dev,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal discovery config for %s: %w", m, err)
		}
		out = append(out, Message{
			Topic:   b.ConfigTopic(token, m),
			Payload: payload,
			Retain:  true,
		})
	}
	return out, nil
}

// Availability returns the gateway status message.
func (b *Builder) Availability(gateway, state string) Message {
	return Message{
		Topic:   b.AvailabilityTopic(gateway),
		Payload: []byte(state),
	}
}
