package envelope

import (
	"errors"
	"testing"
	"time"

	"ruuvigw-bridge/internal/ruuvi"
)

const (
	gatewayMAC = "C8:25:2D:8E:9C:2C"
	deviceMAC  = "F4:1B:6C:3A:09:E1"
)

func TestExtractIdentifiers(t *testing.T) {
	tests := []struct {
		name       string
		routingKey string
		want       Identifiers
	}{
		{
			name:       "colon delimited",
			routingKey: "ruuvi/" + gatewayMAC + "/" + deviceMAC,
			want:       Identifiers{Gateway: gatewayMAC, Device: deviceMAC},
		},
		{
			name:       "colon free",
			routingKey: "ruuvi/C8252D8E9C2C/F41B6C3A09E1",
			want:       Identifiers{Gateway: "C8252D8E9C2C", Device: "F41B6C3A09E1"},
		},
		{
			name:       "lower case",
			routingKey: "ruuvi/c8:25:2d:8e:9c:2c/f4:1b:6c:3a:09:e1",
			want:       Identifiers{Gateway: "c8:25:2d:8e:9c:2c", Device: "f4:1b:6c:3a:09:e1"},
		},
		{
			name:       "extra identifiers ignored",
			routingKey: "ruuvi/" + gatewayMAC + "/" + deviceMAC + "/AABBCCDDEEFF",
			want:       Identifiers{Gateway: gatewayMAC, Device: deviceMAC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractIdentifiers(tt.routingKey)
			if err != nil {
				t.Fatalf("ExtractIdentifiers(%q) error = %v", tt.routingKey, err)
			}
			if got != tt.want {
				t.Errorf("ExtractIdentifiers(%q) = %+v, want %+v", tt.routingKey, got, tt.want)
			}
		})
	}
}

func TestExtractIdentifiers_Malformed(t *testing.T) {
	for _, key := range []string{
		"ruuvi",
		"ruuvi/" + gatewayMAC,
		"ruuvi/" + gatewayMAC + "/not-a-mac",
		"ruuvi/C8252D8E9C/F41B6C3A09",
	} {
		if _, err := ExtractIdentifiers(key); !errors.Is(err, ErrMalformedRoutingKey) {
			t.Errorf("ExtractIdentifiers(%q) error = %v, want ErrMalformedRoutingKey", key, err)
		}
	}
}

func TestExtractStatusIdentifier(t *testing.T) {
	got, err := ExtractStatusIdentifier("ruuvi/" + gatewayMAC + "/gw_status")
	if err != nil {
		t.Fatalf("ExtractStatusIdentifier() error = %v", err)
	}
	if got != gatewayMAC {
		t.Errorf("ExtractStatusIdentifier() = %q, want %q", got, gatewayMAC)
	}

	if _, err := ExtractStatusIdentifier("ruuvi/gw_status"); !errors.Is(err, ErrMalformedRoutingKey) {
		t.Errorf("error = %v, want ErrMalformedRoutingKey", err)
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AABBCCDDEEFF", "AA:BB:CC:DD:EE:FF"},
		{"aabb", "aa:bb"},
		{"AB", "AB"},
		{"", ""},
		{"ABC", "AB:C"},
	}
	for _, tt := range tests {
		if got := NormalizeIdentifier(tt.in); got != tt.want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := StripSeparators(NormalizeIdentifier("F41B6C3A09E1")); got != "F41B6C3A09E1" {
		t.Errorf("StripSeparators(NormalizeIdentifier()) = %q", got)
	}
}

func TestIsStatus(t *testing.T) {
	if !IsStatus("ruuvi/" + gatewayMAC + "/gw_status") {
		t.Error("status routing key not detected")
	}
	if IsStatus("ruuvi/" + gatewayMAC + "/" + deviceMAC) {
		t.Error("data routing key detected as status")
	}
}

func TestParseData(t *testing.T) {
	body := []byte(`{
		"gw_mac": "C8:25:2D:8E:9C:2C",
		"rssi": -71,
		"aoa": [],
		"gwts": "1638131887",
		"ts": 1638131886,
		"data": "0201061BFF9904050E0030BFC2DCFEAC03B4FFDCA1B6965F41D9CDCA5A5182",
		"coords": ""
	}`)

	got, err := ParseData("ruuvi/"+gatewayMAC+"/"+deviceMAC, body)
	if err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if got.Gateway != gatewayMAC || got.Device != deviceMAC {
		t.Errorf("identifiers = %+v", got.Identifiers)
	}
	if got.RSSI != -71 {
		t.Errorf("RSSI = %d, want -71", got.RSSI)
	}
	if want := time.Unix(1638131887, 0).UTC(); !got.GatewayTime.Equal(want) {
		t.Errorf("GatewayTime = %v, want %v", got.GatewayTime, want)
	}
	if want := time.Unix(1638131886, 0).UTC(); !got.TagTime.Equal(want) {
		t.Errorf("TagTime = %v, want %v", got.TagTime, want)
	}

	mfg, err := ManufacturerData(got.Payload)
	if err != nil {
		t.Fatalf("ManufacturerData() error = %v", err)
	}
	if !ruuvi.IsRuuvi(mfg) {
		t.Errorf("manufacturer data % X does not start with the Ruuvi id", mfg)
	}
}

func TestParseData_Errors(t *testing.T) {
	key := "ruuvi/" + gatewayMAC + "/" + deviceMAC

	tests := []struct {
		name string
		key  string
		body string
		want error
	}{
		{name: "routing key", key: "ruuvi/" + gatewayMAC, body: `{"data":"00"}`, want: ErrMalformedRoutingKey},
		{name: "not json", key: key, body: `online`, want: ErrMalformedBody},
		{name: "missing data", key: key, body: `{"rssi":-50}`, want: ErrMalformedBody},
		{name: "bad timestamp", key: key, body: `{"data":"00","ts":"soon"}`, want: ErrMalformedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseData(tt.key, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseData() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	key := "ruuvi/" + gatewayMAC + "/gw_status"

	got, err := ParseStatus(key, []byte(`{"state":"online"}`))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if got.Gateway != gatewayMAC || got.State != "online" {
		t.Errorf("ParseStatus() = %+v", got)
	}

	if _, err := ParseStatus(key, []byte(`{}`)); !errors.Is(err, ErrMalformedBody) {
		t.Errorf("empty state: error = %v, want ErrMalformedBody", err)
	}
}

func TestManufacturerData_Errors(t *testing.T) {
	if _, err := ManufacturerData("020106"); !errors.Is(err, ruuvi.ErrTruncatedPayload) {
		t.Errorf("short payload: error = %v, want ErrTruncatedPayload", err)
	}
	if _, err := ManufacturerData("0201061BFF99040"); !errors.Is(err, ruuvi.ErrMalformedPayload) {
		t.Errorf("odd hex: error = %v, want ErrMalformedPayload", err)
	}
}
