package httpapi

import (
	"database/sql"
	"net/http"

	"ruuvigw-bridge/internal/bridge"
)

// BridgeStatus is the part of the bridge the health check reports on.
type BridgeStatus interface {
	Stats() bridge.Stats
	Devices() int
}

// BrokerStatus reports the MQTT connection state.
type BrokerStatus interface {
	IsConnected() bool
}

// NewMux registers the health check. db may be nil when the archive is
// disabled.
func NewMux(db *sql.DB, b BridgeStatus, broker BrokerStatus) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, b, broker)
	return mux
}
