package readings

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ruuvigw-bridge/internal/utils"
)

const (
	defaultLimit  = 100
	maxLimit      = 1000
	defaultWindow = 24 * time.Hour
)

var errInvalidWindow = errors.New("'from' must be <= 'to'")

type Controller interface {
	RegisterRoutes(mux *http.ServeMux)
}

type controllerImpl struct {
	repository Repository
	now        func() time.Time
}

func NewController(repository Repository) Controller {
	return &controllerImpl{repository: repository, now: time.Now}
}

func (c *controllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices", c.handleDevices)
	mux.HandleFunc("GET /api/devices/{id}/latest", c.handleLatest)
	mux.HandleFunc("GET /api/devices/{id}/readings", c.handleReadings)
}

func (c *controllerImpl) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.GetDevices(r.Context())
	if err != nil {
		slog.Error("devices: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	if devices == nil {
		devices = []Device{}
	}
	utils.WriteJSON(w, http.StatusOK, devices)
}

func (c *controllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	id := DeviceID(r.PathValue("id"))
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device id")
		return
	}

	limit, err := utils.QueryLimit(r, defaultLimit, maxLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	latest, err := c.repository.GetLatestReadings(r.Context(), id, limit)
	if err != nil {
		slog.Error("latest: query failed", "device", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, latest)
}

func (c *controllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	id := DeviceID(r.PathValue("id"))
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device id")
		return
	}

	from, to, limit, err := c.parseReadingsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.GetReadings(r.Context(), id, from, to, limit)
	if err != nil {
		slog.Error("readings: query failed", "device", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"device": id,
		"from":   from,
		"to":     to,
		"limit":  limit,
		"items":  readings,
	})
}

// parseReadingsQuery defaults to the last 24 hours ending now; a lone
// bound extends the window 24 hours from it.
func (c *controllerImpl) parseReadingsQuery(r *http.Request) (from, to time.Time, limit int, err error) {
	if from, err = utils.QueryTime(r, "from"); err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	if to, err = utils.QueryTime(r, "to"); err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	if limit, err = utils.QueryLimit(r, defaultLimit, maxLimit); err != nil {
		return time.Time{}, time.Time{}, 0, err
	}

	switch {
	case from.IsZero() && to.IsZero():
		to = c.now().UTC()
		from = to.Add(-defaultWindow)
	case to.IsZero():
		to = from.Add(defaultWindow)
	case from.IsZero():
		from = to.Add(-defaultWindow)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, 0, errInvalidWindow
	}
	return from, to, limit, nil
}
