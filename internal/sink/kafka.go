// Package sink forwards observations to secondary stores next to the
// Home Assistant output.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ruuvigw-bridge/internal/homeassistant"
	"ruuvigw-bridge/internal/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per observation, keyed by device token so
// one device's readings stay on one partition.
type Kafka struct {
	writer messageWriter
	topic  string
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w, topic: topic}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Write(ctx context.Context, obs types.Observation) error {
	msg, err := kafkaMessage(obs)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func kafkaMessage(obs types.Observation) (kafka.Message, error) {
	value, err := json.Marshal(obs.Telemetry())
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode telemetry: %w", err)
	}
	return kafka.Message{
		Key:   []byte(homeassistant.Token(obs.Device)),
		Value: value,
		Time:  obs.SeenAt,
		Headers: []kafka.Header{
			{Key: "format", Value: []byte(obs.Record.Format.String())},
			{Key: "gateway", Value: []byte(obs.Gateway)},
		},
	}, nil
}
