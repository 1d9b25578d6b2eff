package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ruuvigw-bridge/internal/ble"
	"ruuvigw-bridge/internal/bridge"
	"ruuvigw-bridge/internal/config"
	"ruuvigw-bridge/internal/homeassistant"
	"ruuvigw-bridge/internal/httpapi"
	"ruuvigw-bridge/internal/mqtt"
	"ruuvigw-bridge/internal/policy"
	"ruuvigw-bridge/internal/readings"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttClientID", cfg.MQTTClientID,
		"sourceTopic", cfg.MQTTSourceTopic,
		"stateNamespace", cfg.StateNamespace,
		"discoveryPrefix", cfg.DiscoveryPrefix,
		"stateInterval", cfg.StateInterval,
		"discoveryInterval", cfg.DiscoveryInterval,
		"discoveryScope", cfg.DiscoveryScope.String(),
		"catalog", cfg.CatalogFile,
	)

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}

	builder := homeassistant.NewBuilder(catalog.Labels())
	builder.StateNamespace = cfg.StateNamespace
	builder.DiscoveryPrefix = cfg.DiscoveryPrefix
	builder.Dictionary = catalog.Dictionary()

	out, err := openOutputs(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer out.close()

	mqttClient, err := mqtt.NewClient(cfg, logger.With("component", "mqtt"))
	if err != nil {
		return err
	}

	br := bridge.New(bridge.Options{
		Policy: policy.New(policy.Options{
			StateInterval:     cfg.StateInterval,
			DiscoveryInterval: cfg.DiscoveryInterval,
			Scope:             cfg.DiscoveryScope,
		}),
		Builder:   builder,
		Publisher: mqttClient,
		Sinks:     out.sinks,
		Logger:    logger.With("component", "bridge"),
	})

	// Set the handler before Connect so the on-connect subscription
	// delivers straight into the bridge.
	mqttClient.SetMessageHandler(br.HandleMessage)

	mux := httpapi.NewMux(out.db, br, mqttClient)
	if out.db != nil {
		readings.NewController(readings.NewRepository(out.db)).RegisterRoutes(mux)
	}

	// paho retries until the broker answers; the HTTP API and the local
	// scanner stay up in the meantime.
	go func() {
		if err := mqttClient.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mqtt connect failed", "error", err)
		}
	}()

	var bleDone <-chan struct{}
	if cfg.BLEAdapter != "" {
		listener := ble.NewListener(ble.Options{
			Adapter: cfg.BLEAdapter,
			Filter:  ble.RuuviFilter(),
			Logger:  logger,
		})
		fwd := ble.NewForwarder(cfg.BLEGatewayID, br, logger.With("component", "ble"))
		bleDone = fwd.Start(ctx, listener)
	}

	srv := httpapi.NewServer(cfg, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if bleDone != nil {
		select {
		case <-bleDone:
		case <-shutdownCtx.Done():
			logger.Warn("ble listener did not stop in time")
		}
		if mqttClient.IsConnected() {
			msg := builder.Availability(cfg.BLEGatewayID, homeassistant.AvailabilityOffline)
			if err := mqttClient.Publish(shutdownCtx, msg); err != nil {
				logger.Warn("publish offline status failed", "error", err)
			}
		}
	}

	logger.Info("mqtt disconnecting")
	mqttClient.Disconnect()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	stats := br.Stats()
	logger.Info("bridge stopped",
		"received", stats.Received,
		"skipped", stats.Skipped,
		"decoded", stats.Decoded,
		"published", stats.Published,
		"failed", stats.Failed,
		"devices", br.Devices(),
	)

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}
