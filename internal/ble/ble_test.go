package ble

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"ruuvigw-bridge/internal/bridge"
	"ruuvigw-bridge/internal/ruuvi"
)

const tagAddr = "F4:1B:6C:3A:09:E1"

// RAWv2 frame as carried in the AD structure, company id stripped.
var rawV2Body = []byte{
	0x05, 0x0E, 0x00, 0x30, 0xBF, 0xC2, 0xDC, 0xFE, 0xAC, 0x03,
	0xB4, 0xFF, 0xDC, 0xA1, 0xB6, 0x96, 0x5F, 0x41, 0xD9, 0xCD,
	0xCA, 0x5A, 0x51, 0x82,
}

func TestMatch_ManufacturerBytes(t *testing.T) {
	m := Match{CompanyID: ruuvi.CompanyID, Data: rawV2Body}
	got := m.ManufacturerBytes()

	if got[0] != 0x99 || got[1] != 0x04 {
		t.Fatalf("prefix = % X, want 99 04", got[:2])
	}
	if !bytes.Equal(got[2:], rawV2Body) {
		t.Errorf("body = % X", got[2:])
	}

	rec, err := ruuvi.Decode(got)
	if err != nil {
		t.Fatalf("Decode(ManufacturerBytes()) error = %v", err)
	}
	if v, _ := rec.Value(ruuvi.MetricTemperature); v != 17.92 {
		t.Errorf("temperature = %v, want 17.92", v)
	}
}

func TestFilter_Match(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	foreign := bluetooth.ManufacturerDataElement{CompanyID: 0x004C, Data: []byte{0x02, 0x15}}
	ruuviEl := bluetooth.ManufacturerDataElement{CompanyID: ruuvi.CompanyID, Data: rawV2Body}

	tests := []struct {
		name   string
		filter Filter
		mfg    []bluetooth.ManufacturerDataElement
		want   bool
	}{
		{name: "ruuvi", filter: RuuviFilter(), mfg: []bluetooth.ManufacturerDataElement{ruuviEl}, want: true},
		{name: "ruuvi after foreign element", filter: RuuviFilter(), mfg: []bluetooth.ManufacturerDataElement{foreign, ruuviEl}, want: true},
		{name: "foreign only", filter: RuuviFilter(), mfg: []bluetooth.ManufacturerDataElement{foreign}, want: false},
		{name: "no manufacturer data", filter: RuuviFilter(), want: false},
		{name: "prefix match", filter: Filter{CompanyID: ruuvi.CompanyID, DataPrefix: []byte{0x05}}, mfg: []bluetooth.ManufacturerDataElement{ruuviEl}, want: true},
		{name: "prefix mismatch", filter: Filter{CompanyID: ruuvi.CompanyID, DataPrefix: []byte{0x03}}, mfg: []bluetooth.ManufacturerDataElement{ruuviEl}, want: false},
		{name: "any company", filter: Filter{}, mfg: []bluetooth.ManufacturerDataElement{foreign}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := tt.filter.match(tagAddr, -70, tt.mfg, at)
			if ok != tt.want {
				t.Fatalf("match() ok = %v, want %v", ok, tt.want)
			}
			if ok && (m.Address != tagAddr || m.RSSI != -70 || !m.SeenAt.Equal(at)) {
				t.Errorf("match() = %+v", m)
			}
		})
	}
}

func TestFilter_MatchCopiesData(t *testing.T) {
	data := append([]byte(nil), rawV2Body...)
	m, ok := RuuviFilter().match(tagAddr, -70, []bluetooth.ManufacturerDataElement{{CompanyID: ruuvi.CompanyID, Data: data}}, time.Now())
	if !ok {
		t.Fatal("match() ok = false")
	}
	data[0] = 0xFF
	if m.Data[0] != 0x05 {
		t.Error("Match.Data aliases the scan buffer")
	}
}

type recordingHandler struct {
	mu   sync.Mutex
	advs []bridge.Advertisement
}

func (h *recordingHandler) HandleAdvertisement(_ context.Context, adv bridge.Advertisement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advs = append(h.advs, adv)
}

func TestForwarder_HandleMatch(t *testing.T) {
	h := &recordingHandler{}
	f := NewForwarder("local", h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	m := Match{Address: tagAddr, RSSI: -70, CompanyID: ruuvi.CompanyID, Data: rawV2Body, SeenAt: at}
	f.HandleMatch(ctx, m)
	f.HandleMatch(ctx, m) // repeated frame

	next := m
	next.Data = append([]byte(nil), rawV2Body...)
	next.Data[len(next.Data)-1]++ // new sequence number
	f.HandleMatch(ctx, next)

	other := m
	other.Address = "CC:BB:CC:DD:EE:FF"
	f.HandleMatch(ctx, other)

	if len(h.advs) != 3 {
		t.Fatalf("forwarded %d advertisements, want 3", len(h.advs))
	}
	adv := h.advs[0]
	if adv.Gateway != "local" || adv.Device != tagAddr || adv.RSSI != -70 || !adv.SeenAt.Equal(at) {
		t.Errorf("advertisement = %+v", adv)
	}
	if !bytes.Equal(adv.Data, m.ManufacturerBytes()) {
		t.Errorf("Data = % X, want company id prefixed payload", adv.Data)
	}
}

func TestForwarder_DuplicateTableBounded(t *testing.T) {
	f := NewForwarder("local", &recordingHandler{}, nil)
	for i := 0; i < maxTrackedDevices+10; i++ {
		f.duplicate(Match{Address: fmt.Sprintf("addr-%d", i), Data: rawV2Body})
	}
	if n := len(f.last); n > maxTrackedDevices {
		t.Errorf("tracked %d devices, want <= %d", n, maxTrackedDevices)
	}
}
