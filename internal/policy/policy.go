// Package policy decides, per decoded advertisement, whether discovery
// config and state updates are due. All timestamps live in one Policy
// value owned by the caller; nothing is global.
package policy

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultStateInterval     = time.Minute
	DefaultDiscoveryInterval = 10 * time.Minute
)

// DiscoveryScope selects how the discovery timer is kept.
type DiscoveryScope int

const (
	// ScopeShared keeps one discovery timer for all devices. When it
	// fires a new cycle starts, and every device gets discovery on its
	// first sighting within the cycle.
	ScopeShared DiscoveryScope = iota
	// ScopeTrigger keeps one discovery timer for all devices, but only
	// the advertisement that trips it gets discovery. A device first
	// seen shortly after another device started a cycle waits for the
	// next one.
	ScopeTrigger
	// ScopePerDevice keeps a discovery timer per device.
	ScopePerDevice
)

func (s DiscoveryScope) String() string {
	switch s {
	case ScopeShared:
		return "shared"
	case ScopeTrigger:
		return "trigger"
	case ScopePerDevice:
		return "device"
	default:
		return fmt.Sprintf("DiscoveryScope(%d)", int(s))
	}
}

// ParseDiscoveryScope parses "shared", "trigger" or "device".
func ParseDiscoveryScope(s string) (DiscoveryScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shared", "global":
		return ScopeShared, nil
	case "trigger":
		return ScopeTrigger, nil
	case "device", "per-device":
		return ScopePerDevice, nil
	default:
		return ScopeShared, fmt.Errorf("invalid discovery scope %q (allowed: shared, trigger, device)", s)
	}
}

type Options struct {
	StateInterval     time.Duration
	DiscoveryInterval time.Duration
	Scope             DiscoveryScope
}

// Decision says what to publish for one decoded advertisement.
type Decision struct {
	Discovery bool
	State     bool
}

// DeviceState holds the emission timestamps of one device. A zero time
// means nothing was emitted yet.
type DeviceState struct {
	LastStateEmitAt     time.Time
	LastDiscoveryEmitAt time.Time
}

// Policy tracks emission times. It is safe for concurrent use; two
// devices decided at the same time never both start a discovery cycle.
type Policy struct {
	opts Options

	mu                  sync.Mutex
	devices             map[string]*DeviceState
	lastDiscoveryEmitAt time.Time
}

func New(opts Options) *Policy {
	if opts.StateInterval <= 0 {
		opts.StateInterval = DefaultStateInterval
	}
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = DefaultDiscoveryInterval
	}
	return &Policy{
		opts:    opts,
		devices: make(map[string]*DeviceState),
	}
}

// Decide records a sighting of device at time at and reports which
// messages are due. Timers are only advanced for the parts that fire.
func (p *Policy) Decide(device string, at time.Time) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.devices[device]
	if !ok {
		st = &DeviceState{}
		p.devices[device] = st
	}

	var d Decision

	switch p.opts.Scope {
	case ScopePerDevice:
		if due(st.LastDiscoveryEmitAt, at, p.opts.DiscoveryInterval) {
			st.LastDiscoveryEmitAt = at
			d.Discovery = true
		}
	default:
		switch {
		case due(p.lastDiscoveryEmitAt, at, p.opts.DiscoveryInterval):
			p.lastDiscoveryEmitAt = at
			st.LastDiscoveryEmitAt = at
			d.Discovery = true
		case p.opts.Scope == ScopeShared && st.LastDiscoveryEmitAt.Before(p.lastDiscoveryEmitAt):
			// Marked with the cycle start so a sighting stamped earlier
			// than the cycle does not join it twice.
			st.LastDiscoveryEmitAt = p.lastDiscoveryEmitAt
			d.Discovery = true
		}
	}

	if due(st.LastStateEmitAt, at, p.opts.StateInterval) {
		st.LastStateEmitAt = at
		d.State = true
	}

	return d
}

func due(last, at time.Time, interval time.Duration) bool {
	return last.IsZero() || at.Sub(last) >= interval
}

// Devices returns the number of devices seen so far.
func (p *Policy) Devices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.devices)
}

// Snapshot returns a copy of the per-device state.
func (p *Policy) Snapshot() map[string]DeviceState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]DeviceState, len(p.devices))
	for id, st := range p.devices {
		out[id] = *st
	}
	return out
}

// LastDiscoveryEmitAt returns the start of the current shared discovery
// cycle.
func (p *Policy) LastDiscoveryEmitAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDiscoveryEmitAt
}
