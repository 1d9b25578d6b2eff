package app

import (
	"context"
	"database/sql"
	"log/slog"

	"ruuvigw-bridge/internal/bridge"
	"ruuvigw-bridge/internal/config"
	"ruuvigw-bridge/internal/db"
	"ruuvigw-bridge/internal/db/migrate"
	"ruuvigw-bridge/internal/readings"
	"ruuvigw-bridge/internal/sink"
)

// outputs holds the optional sinks and the archive connection. The
// cleanup functions run in reverse order of opening.
type outputs struct {
	sinks   []bridge.Sink
	db      *sql.DB
	closers []func()
}

func (o *outputs) close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
}

func openOutputs(ctx context.Context, cfg config.Config, logger *slog.Logger) (*outputs, error) {
	out := &outputs{}

	if cfg.SQLitePath != "" {
		conn, err := db.Open(db.Options{Path: cfg.SQLitePath, LogQueries: cfg.DBLogQueries, Logger: logger})
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, func() {
			if err := db.Close(conn); err != nil {
				logger.Error("db close", "error", err)
			}
		})
		if err := migrate.Run(ctx, conn, logger); err != nil {
			out.close()
			return nil, err
		}
		out.db = conn
		out.sinks = append(out.sinks, readings.NewSink(readings.NewRepository(conn)))
		logger.Info("archive enabled", "path", cfg.SQLitePath)
	}

	if len(cfg.KafkaBrokers) > 0 {
		k := sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		out.closers = append(out.closers, func() {
			if err := k.Close(); err != nil {
				logger.Error("kafka close", "error", err)
			}
		})
		out.sinks = append(out.sinks, k)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.InfluxURL != "" {
		i := sink.NewInflux(cfg)
		out.closers = append(out.closers, i.Close)
		out.sinks = append(out.sinks, i)
		logger.Info("influx sink enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}

	return out, nil
}
