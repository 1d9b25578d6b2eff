// Package bridge runs one envelope at a time through the decode pipeline:
// envelope parsing, manufacturer filtering, format decoding, the
// publication policy and message building. It publishes the resulting
// messages and hands emitted observations to the configured sinks.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"ruuvigw-bridge/internal/envelope"
	"ruuvigw-bridge/internal/homeassistant"
	"ruuvigw-bridge/internal/policy"
	"ruuvigw-bridge/internal/ruuvi"
	"ruuvigw-bridge/internal/types"
)

// Publisher delivers outgoing messages, typically to an MQTT broker.
type Publisher interface {
	Publish(ctx context.Context, msg homeassistant.Message) error
}

// Sink stores or forwards observations that produced a state update.
type Sink interface {
	Name() string
	Write(ctx context.Context, obs types.Observation) error
}

// Advertisement is a manufacturer data payload received without a gateway
// envelope, e.g. from a local BLE scanner.
type Advertisement struct {
	Gateway string
	Device  string
	Data    []byte
	RSSI    int
	SeenAt  time.Time
}

type Options struct {
	Policy    *policy.Policy
	Builder   *homeassistant.Builder
	Publisher Publisher
	Sinks     []Sink
	Logger    *slog.Logger
	Now       func() time.Time
}

// Stats counts pipeline outcomes since start.
type Stats struct {
	Received  int64 `json:"received"`
	Skipped   int64 `json:"skipped"`
	Decoded   int64 `json:"decoded"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

type Bridge struct {
	policy    *policy.Policy
	builder   *homeassistant.Builder
	publisher Publisher
	sinks     []Sink
	logger    *slog.Logger
	now       func() time.Time

	received  atomic.Int64
	skipped   atomic.Int64
	decoded   atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
}

func New(opts Options) *Bridge {
	b := &Bridge{
		policy:    opts.Policy,
		builder:   opts.Builder,
		publisher: opts.Publisher,
		sinks:     opts.Sinks,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if b.policy == nil {
		b.policy = policy.New(policy.Options{})
	}
	if b.builder == nil {
		b.builder = homeassistant.NewBuilder(nil)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// IsSkip reports whether err means the envelope was not meant for
// publication: malformed, from another vendor, or in an unknown format.
func IsSkip(err error) bool {
	return errors.Is(err, envelope.ErrMalformedRoutingKey) ||
		errors.Is(err, envelope.ErrMalformedBody) ||
		errors.Is(err, ruuvi.ErrForeignManufacturer) ||
		errors.Is(err, ruuvi.ErrUnknownFormat) ||
		errors.Is(err, ruuvi.ErrTruncatedPayload) ||
		errors.Is(err, ruuvi.ErrMalformedPayload)
}

// Process runs one envelope through the pipeline at time at. It returns
// the messages to publish in order and, when a state update is due, the
// observation for the sinks. Rejected envelopes return a skip error and
// leave the policy untouched.
func (b *Bridge) Process(topic string, body []byte, at time.Time) ([]homeassistant.Message, *types.Observation, error) {
	if envelope.IsStatus(topic) {
		st, err := envelope.ParseStatus(topic, body)
		if err != nil {
			return nil, nil, err
		}
		return []homeassistant.Message{b.builder.Availability(st.Gateway, st.State)}, nil, nil
	}

	env, err := envelope.ParseData(topic, body)
	if err != nil {
		return nil, nil, err
	}
	data, err := envelope.ManufacturerData(env.Payload)
	if err != nil {
		return nil, nil, err
	}
	return b.process(env.Gateway, env.Device, data, env.RSSI, at)
}

func (b *Bridge) process(gateway, device string, data []byte, rssi int, at time.Time) ([]homeassistant.Message, *types.Observation, error) {
	rec, err := ruuvi.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	b.decoded.Add(1)
	rec = rec.WithContext(device, rssi)

	decision := b.policy.Decide(homeassistant.DeviceKey(device), at)

	var msgs []homeassistant.Message
	if decision.Discovery {
		cfg, err := b.builder.Discovery(gateway, device, rec)
		if err != nil {
			return nil, nil, fmt.Errorf("build discovery: %w", err)
		}
		msgs = append(msgs, cfg...)
		msgs = append(msgs, b.builder.Availability(gateway, homeassistant.AvailabilityOnline))
	}

	var obs *types.Observation
	if decision.State {
		msgs = append(msgs, b.builder.State(device, rec)...)
		obs = &types.Observation{
			Gateway: gateway,
			Device:  device,
			Label:   b.builder.Label(device),
			SeenAt:  at,
			Record:  rec,
		}
	}
	return msgs, obs, nil
}

// HandleMessage processes a message received on the gateway feed.
func (b *Bridge) HandleMessage(ctx context.Context, topic string, body []byte) {
	b.received.Add(1)

	msgs, obs, err := b.Process(topic, body, b.now())
	if err != nil {
		b.reject(topic, err)
		return
	}
	b.emit(ctx, msgs, obs)
}

// HandleAdvertisement processes manufacturer data seen directly by a
// local scanner.
func (b *Bridge) HandleAdvertisement(ctx context.Context, adv Advertisement) {
	b.received.Add(1)

	at := adv.SeenAt
	if at.IsZero() {
		at = b.now()
	}
	msgs, obs, err := b.process(adv.Gateway, adv.Device, adv.Data, adv.RSSI, at)
	if err != nil {
		b.reject(adv.Device, err)
		return
	}
	b.emit(ctx, msgs, obs)
}

func (b *Bridge) reject(source string, err error) {
	if IsSkip(err) {
		b.skipped.Add(1)
		b.logger.Debug("bridge: skip envelope", "source", source, "reason", err)
		return
	}
	b.failed.Add(1)
	b.logger.Error("bridge: process envelope", "source", source, "error", err)
}

func (b *Bridge) emit(ctx context.Context, msgs []homeassistant.Message, obs *types.Observation) {
	if b.publisher != nil {
		for _, m := range msgs {
			if err := b.publisher.Publish(ctx, m); err != nil {
				b.failed.Add(1)
				b.logger.Warn("bridge: publish failed", "topic", m.Topic, "error", err)
				continue
			}
			b.published.Add(1)
		}
	}

	if obs == nil {
		return
	}
	for _, s := range b.sinks {
		if err := s.Write(ctx, *obs); err != nil {
			b.failed.Add(1)
			b.logger.Warn("bridge: sink write failed", "sink", s.Name(), "device", obs.Device, "error", err)
		}
	}
	b.logger.Debug("bridge: state emitted",
		"gateway", obs.Gateway,
		"device", obs.Device,
		"format", obs.Record.Format,
		"rssi", obs.Record.RSSI,
	)
}

// Stats returns a snapshot of the pipeline counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Skipped:   b.skipped.Load(),
		Decoded:   b.decoded.Load(),
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
	}
}

// Devices returns the number of devices seen by the policy.
func (b *Bridge) Devices() int {
	return b.policy.Devices()
}
