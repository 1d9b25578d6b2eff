package ble

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"ruuvigw-bridge/internal/bridge"
	"ruuvigw-bridge/internal/utils"
)

// maxTrackedDevices bounds the duplicate filter; past it the table is
// reset rather than grown.
const maxTrackedDevices = 500

// AdvertisementHandler consumes advertisements from a local scan.
type AdvertisementHandler interface {
	HandleAdvertisement(ctx context.Context, adv bridge.Advertisement)
}

// Forwarder hands matches to the bridge as if a gateway had relayed them.
// Tags repeat each frame several times; repeats of the last payload seen
// from an address are dropped before decoding.
type Forwarder struct {
	gateway string
	handler AdvertisementHandler
	logger  *slog.Logger

	mu   sync.Mutex
	last map[string][]byte
}

func NewForwarder(gateway string, handler AdvertisementHandler, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		gateway: gateway,
		handler: handler,
		logger:  logger,
		last:    make(map[string][]byte),
	}
}

// HandleMatch is the Listener callback.
func (f *Forwarder) HandleMatch(ctx context.Context, m Match) {
	if f.duplicate(m) {
		return
	}

	data := m.ManufacturerBytes()
	f.logger.Debug("ble: advertisement",
		"addr", m.Address,
		"rssi", m.RSSI,
		"data", utils.HexUpper(data),
	)
	f.handler.HandleAdvertisement(ctx, bridge.Advertisement{
		Gateway: f.gateway,
		Device:  m.Address,
		Data:    data,
		RSSI:    int(m.RSSI),
		SeenAt:  m.SeenAt,
	})
}

func (f *Forwarder) duplicate(m Match) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.last[m.Address]; ok && bytes.Equal(prev, m.Data) {
		return true
	}
	if len(f.last) >= maxTrackedDevices {
		f.last = make(map[string][]byte)
	}
	f.last[m.Address] = m.Data
	return false
}

// Start runs listener in the background. A missing or broken adapter is
// logged and the bridge keeps serving MQTT input.
func (f *Forwarder) Start(ctx context.Context, listener *Listener) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := listener.Run(ctx, func(m Match) { f.HandleMatch(ctx, m) })
		if err != nil {
			f.logger.Warn("ble listener could not be initialized; continuing without BLE", "error", err)
		}
	}()
	return done
}
