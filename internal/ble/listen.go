// Package ble scans for Ruuvi advertisements on a local Bluetooth adapter,
// for hosts that run the bridge without a Ruuvi Gateway.
package ble

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"ruuvigw-bridge/internal/ruuvi"
	"ruuvigw-bridge/internal/utils"
)

// Match is one advertisement that passed the filter.
type Match struct {
	Address   string
	RSSI      int16
	CompanyID uint16
	Data      []byte
	SeenAt    time.Time
}

// ManufacturerBytes returns the manufacturer specific data as the gateway
// relays it: the little-endian company id followed by Data.
func (m Match) ManufacturerBytes() []byte {
	out := make([]byte, 2, 2+len(m.Data))
	binary.LittleEndian.PutUint16(out, m.CompanyID)
	return append(out, m.Data...)
}

type Filter struct {
	CompanyID  uint16
	DataPrefix []byte
}

// RuuviFilter matches every Ruuvi advertisement regardless of format.
func RuuviFilter() Filter {
	return Filter{CompanyID: ruuvi.CompanyID}
}

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
	Logger  *slog.Logger
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger.With("component", "ble", "adapter", opts.Adapter),
	}
}

// Run scans until ctx is cancelled. onMatch is called from the scan
// goroutine.
func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("ble: scanning started",
		"filter_company", utils.CompanyHex(l.opts.Filter.CompanyID),
		"filter_prefix", utils.HexUpper(l.opts.Filter.DataPrefix),
	)

	// Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		m, ok := l.opts.Filter.match(r.Address.String(), r.RSSI, r.ManufacturerData(), time.Now())
		if ok && onMatch != nil {
			onMatch(m)
		}
	})

	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}

// match returns the first manufacturer element accepted by f.
func (f Filter) match(addr string, rssi int16, mfg []bluetooth.ManufacturerDataElement, at time.Time) (Match, bool) {
	for _, md := range mfg {
		if f.CompanyID != 0 && md.CompanyID != f.CompanyID {
			continue
		}
		if !bytes.HasPrefix(md.Data, f.DataPrefix) {
			continue
		}
		return Match{
			Address:   addr,
			RSSI:      rssi,
			CompanyID: md.CompanyID,
			Data:      append([]byte(nil), md.Data...),
			SeenAt:    at,
		}, true
	}
	return Match{}, false
}
