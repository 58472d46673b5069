package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	dashboardapp "soilwatch/internal/dashboard/application"
	dashboard "soilwatch/internal/dashboard/domain"
)

// DevicesHandler serves the latest view per device and device history.
type DevicesHandler struct {
	service *dashboardapp.Service
}

// NewDevicesHandler constructs a DevicesHandler.
func NewDevicesHandler(service *dashboardapp.Service) (*DevicesHandler, error) {
	if service == nil {
		return nil, errors.New("devices handler: nil service")
	}
	return &DevicesHandler{service: service}, nil
}

type historyResponse struct {
	DeviceID string             `json:"device_id"`
	Timezone string             `json:"timezone"`
	Width    string             `json:"bucket_width"`
	Buckets  []dashboard.Bucket `json:"buckets"`
}

// ServeHTTP handles /api/v1/devices and /api/v1/devices/{id}/history.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/devices":
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/devices/") && strings.HasSuffix(r.URL.Path, "/history"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/devices/"), "/history")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleHistory(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *DevicesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "query devices error")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *DevicesHandler) handleHistory(w http.ResponseWriter, r *http.Request, deviceID string) {
	buckets, err := h.service.History(r.Context(), deviceID)
	if errors.Is(err, dashboardapp.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "query history error")
		return
	}
	cfg := h.service.Config()
	writeJSON(w, http.StatusOK, historyResponse{
		DeviceID: deviceID,
		Timezone: cfg.Location().String(),
		Width:    cfg.BucketWidth.String(),
		Buckets:  buckets,
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
