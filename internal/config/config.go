package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ruuvigw-bridge/internal/policy"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTSourceTopic string

	StateNamespace    string
	DiscoveryPrefix   string
	StateInterval     time.Duration
	DiscoveryInterval time.Duration
	DiscoveryScope    policy.DiscoveryScope

	// CatalogFile is an optional YAML file with device labels and sensor
	// descriptor overrides.
	CatalogFile string

	// SQLitePath enables the reading archive when set.
	SQLitePath   string
	DBLogQueries bool

	KafkaBrokers []string
	KafkaTopic   string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// BLEAdapter enables local scanning when set (e.g. "hci0").
	BLEAdapter   string
	BLEGatewayID string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "ruuvigw-bridge-" + uuid.NewString()[:8]
	}

	mqttSourceTopic := strings.TrimSpace(os.Getenv("MQTT_SOURCE_TOPIC"))
	if mqttSourceTopic == "" {
		mqttSourceTopic = "ruuvi/#"
	}

	stateNamespace := strings.Trim(strings.TrimSpace(os.Getenv("STATE_NAMESPACE")), "/")
	if stateNamespace == "" {
		stateNamespace = "ruuvigw"
	}

	discoveryPrefix := strings.Trim(strings.TrimSpace(os.Getenv("DISCOVERY_PREFIX")), "/")
	if discoveryPrefix == "" {
		discoveryPrefix = "homeassistant"
	}

	stateInterval, err := parsePositiveDuration("STATE_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}
	discoveryInterval, err := parsePositiveDuration("DISCOVERY_INTERVAL", "10m")
	if err != nil {
		return Config{}, err
	}

	scopeStr := strings.TrimSpace(os.Getenv("DISCOVERY_SCOPE"))
	if scopeStr == "" {
		scopeStr = "shared"
	}
	scope, err := policy.ParseDiscoveryScope(scopeStr)
	if err != nil {
		return Config{}, fmt.Errorf("DISCOVERY_SCOPE: %w", err)
	}

	dbLogQueries := false
	if s := strings.TrimSpace(os.Getenv("DB_LOG_QUERIES")); s != "" {
		dbLogQueries, err = strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_LOG_QUERIES %q: %w", s, err)
		}
	}

	kafkaBrokers := splitList(os.Getenv("KAFKA_BROKERS"))
	kafkaTopic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if kafkaTopic == "" {
		kafkaTopic = "ruuvi.readings"
	}

	influxURL := strings.TrimSpace(os.Getenv("INFLUX_URL"))
	influxBucket := strings.TrimSpace(os.Getenv("INFLUX_BUCKET"))
	influxOrg := strings.TrimSpace(os.Getenv("INFLUX_ORG"))
	if influxURL != "" && (influxBucket == "" || influxOrg == "") {
		return Config{}, fmt.Errorf("INFLUX_URL is set but INFLUX_ORG or INFLUX_BUCKET is empty")
	}

	bleGatewayID := strings.TrimSpace(os.Getenv("BLE_GATEWAY_ID"))
	if bleGatewayID == "" {
		bleGatewayID = "local"
	}

	return Config{
		AppEnv:            appEnv,
		LogLevel:          level,
		HTTPAddr:          httpAddr,
		MQTTBroker:        mqttBroker,
		MQTTPort:          mqttPort,
		MQTTClientID:      mqttClientID,
		MQTTUsername:      strings.TrimSpace(os.Getenv("MQTT_USERNAME")),
		MQTTPassword:      os.Getenv("MQTT_PASSWORD"),
		MQTTSourceTopic:   mqttSourceTopic,
		StateNamespace:    stateNamespace,
		DiscoveryPrefix:   discoveryPrefix,
		StateInterval:     stateInterval,
		DiscoveryInterval: discoveryInterval,
		DiscoveryScope:    scope,
		CatalogFile:       strings.TrimSpace(os.Getenv("CATALOG_FILE")),
		SQLitePath:        strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		DBLogQueries:      dbLogQueries,
		KafkaBrokers:      kafkaBrokers,
		KafkaTopic:        kafkaTopic,
		InfluxURL:         influxURL,
		InfluxToken:       strings.TrimSpace(os.Getenv("INFLUX_TOKEN")),
		InfluxOrg:         influxOrg,
		InfluxBucket:      influxBucket,
		BLEAdapter:        strings.TrimSpace(os.Getenv("BLE_ADAPTER")),
		BLEGatewayID:      bleGatewayID,
	}, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
