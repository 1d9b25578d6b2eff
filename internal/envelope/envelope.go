// Package envelope parses the MQTT messages a Ruuvi Gateway relays:
// advertisement envelopes on ruuvi/<gateway>/<device> and gateway status
// on ruuvi/<gateway>/gw_status.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ruuvigw-bridge/internal/ruuvi"
)

// StatusMarker is the last routing key segment of gateway status envelopes.
const StatusMarker = "gw_status"

// headerHexLen is the BLE AD structure header the gateway keeps in front
// of the manufacturer data (flags AD + length + 0xFF type, 5 bytes).
const headerHexLen = 10

var (
	ErrMalformedRoutingKey = errors.New("malformed routing key")
	ErrMalformedBody       = errors.New("malformed envelope body")
)

var macPattern = regexp.MustCompile(`(?:[0-9a-fA-F]:?){12}`)

// Identifiers are the MAC-style tokens found in a data routing key.
type Identifiers struct {
	Gateway string
	Device  string
}

func findIdentifiers(routingKey string) []string {
	found := macPattern.FindAllString(routingKey, -1)
	for i, id := range found {
		found[i] = strings.TrimRight(id, ":")
	}
	return found
}

// ExtractIdentifiers returns the gateway (first match) and device (second
// match) identifiers of a data envelope routing key.
func ExtractIdentifiers(routingKey string) (Identifiers, error) {
	found := findIdentifiers(routingKey)
	if len(found) < 2 {
		return Identifiers{}, fmt.Errorf("%w: %q has %d identifiers, want 2", ErrMalformedRoutingKey, routingKey, len(found))
	}
	return Identifiers{Gateway: found[0], Device: found[1]}, nil
}

// ExtractStatusIdentifier returns the gateway identifier of a status
// envelope routing key.
func ExtractStatusIdentifier(routingKey string) (string, error) {
	found := findIdentifiers(routingKey)
	if len(found) == 0 {
		return "", fmt.Errorf("%w: %q has no identifier", ErrMalformedRoutingKey, routingKey)
	}
	return found[0], nil
}

// NormalizeIdentifier places a colon after every two characters except
// the final pair: "AABBCCDDEEFF" becomes "AA:BB:CC:DD:EE:FF".
func NormalizeIdentifier(id string) string {
	var b strings.Builder
	b.Grow(len(id) + len(id)/2)
	for i := 0; i < len(id); i += 2 {
		end := min(i+2, len(id))
		b.WriteString(id[i:end])
		if end < len(id) {
			b.WriteByte(':')
		}
	}
	return b.String()
}

// StripSeparators removes colon separators from an identifier.
func StripSeparators(id string) string {
	return strings.ReplaceAll(id, ":", "")
}

// IsStatus reports whether routingKey addresses a gateway status envelope.
func IsStatus(routingKey string) bool {
	return strings.HasSuffix(routingKey, StatusMarker)
}

// Timestamp is a unix time in seconds that the gateway sends either as a
// JSON number or as a quoted string depending on firmware version.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	sec, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", b, err)
	}
	t.Time = time.Unix(sec, 0).UTC()
	return nil
}

type dataBody struct {
	GatewayMAC string    `json:"gw_mac"`
	RSSI       int       `json:"rssi"`
	GatewayTS  Timestamp `json:"gwts"`
	TS         Timestamp `json:"ts"`
	Data       string    `json:"data"`
}

type statusBody struct {
	State string `json:"state"`
}

// Data is a parsed advertisement envelope.
type Data struct {
	Identifiers
	// Payload is the raw advertisement hex, AD header included.
	Payload     string
	RSSI        int
	GatewayTime time.Time
	TagTime     time.Time
}

// Status is a parsed gateway status envelope.
type Status struct {
	Gateway string
	State   string
}

// ParseData parses an advertisement envelope.
func ParseData(routingKey string, body []byte) (Data, error) {
	ids, err := ExtractIdentifiers(routingKey)
	if err != nil {
		return Data{}, err
	}

	var b dataBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if b.Data == "" {
		return Data{}, fmt.Errorf("%w: missing field: data", ErrMalformedBody)
	}

	return Data{
		Identifiers: ids,
		Payload:     b.Data,
		RSSI:        b.RSSI,
		GatewayTime: b.GatewayTS.Time,
		TagTime:     b.TS.Time,
	}, nil
}

// ParseStatus parses a gateway status envelope.
func ParseStatus(routingKey string, body []byte) (Status, error) {
	gw, err := ExtractStatusIdentifier(routingKey)
	if err != nil {
		return Status{}, err
	}

	var b statusBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if strings.TrimSpace(b.State) == "" {
		return Status{}, fmt.Errorf("%w: missing field: state", ErrMalformedBody)
	}
	return Status{Gateway: gw, State: b.State}, nil
}

// ManufacturerData strips the AD header from an advertisement payload and
// returns the manufacturer data bytes.
func ManufacturerData(payload string) ([]byte, error) {
	if len(payload) < headerHexLen {
		return nil, fmt.Errorf("%w: advertisement %q shorter than AD header", ruuvi.ErrTruncatedPayload, payload)
	}
	return ruuvi.ParseHex(payload[headerHexLen:])
}
