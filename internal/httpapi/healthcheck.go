package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"ruuvigw-bridge/internal/bridge"
	"ruuvigw-bridge/internal/utils"
)

type healthResponse struct {
	Status  string       `json:"status"`
	MQTT    bool         `json:"mqtt"`
	Archive bool         `json:"archive"`
	Devices int          `json:"devices"`
	Stats   bridge.Stats `json:"stats"`
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	bridge BridgeStatus
	broker BrokerStatus
}

func NewHealthchecker(db *sql.DB, b BridgeStatus, broker BrokerStatus) healthchecker {
	return &healthcheckerImpl{db: db, bridge: b, broker: broker}
}

// handleHealthz fails only when the archive is enabled and unreachable.
// A broker outage is reported but the process stays healthy while paho
// reconnects.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		var ok int
		if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
			slog.Error("failed to check database connectivity", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
			return
		}
	}

	resp := healthResponse{Status: "ok", Archive: h.db != nil}
	if h.broker != nil {
		resp.MQTT = h.broker.IsConnected()
	}
	if h.bridge != nil {
		resp.Devices = h.bridge.Devices()
		resp.Stats = h.bridge.Stats()
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, b BridgeStatus, broker BrokerStatus) {
	healthchecker := NewHealthchecker(db, b, broker)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
