package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"ruuvigw-bridge/internal/config"
	"ruuvigw-bridge/internal/homeassistant"
	"ruuvigw-bridge/internal/types"
)

// Measurement is the InfluxDB measurement every observation is written to.
const Measurement = "ruuvitag"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes one point per observation through the blocking write API.
type Influx struct {
	client influxdb2.Client
	writer pointWriter
}

func NewInflux(cfg config.Config) *Influx {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Influx{
		client: client,
		writer: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}
}

func (i *Influx) Name() string { return "influx" }

func (i *Influx) Write(ctx context.Context, obs types.Observation) error {
	if err := i.writer.WritePoint(ctx, buildPoint(obs)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (i *Influx) Close() {
	if i != nil && i.client != nil {
		i.client.Close()
	}
}

func buildPoint(obs types.Observation) *write.Point {
	tags := map[string]string{
		"device":  homeassistant.Token(obs.Device),
		"gateway": obs.Gateway,
		"format":  obs.Record.Format.String(),
	}
	if obs.Label != "" {
		tags["label"] = obs.Label
	}

	fields := obs.Fields()
	fields["rssi"] = obs.Record.RSSI

	return write.NewPoint(Measurement, tags, fields, obs.SeenAt)
}
