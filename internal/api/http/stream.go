package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"soilwatch/internal/auth"
	dashboardapp "soilwatch/internal/dashboard/application"
	dashboard "soilwatch/internal/dashboard/domain"
	"soilwatch/internal/observability/logging"
)

const keepAliveInterval = 25 * time.Second

// StreamHandler serves a live dashboard session over server-sent events.
type StreamHandler struct {
	service *dashboardapp.Service
	logger  *zap.Logger
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(service *dashboardapp.Service, logger *zap.Logger) (*StreamHandler, error) {
	if service == nil {
		return nil, errors.New("stream handler: nil service")
	}
	return &StreamHandler{service: service, logger: logging.OrNop(logger)}, nil
}

type streamPayload struct {
	Devices []dashboard.DeviceLatestView `json:"devices"`
	At      string                       `json:"at"`
	Error   string                       `json:"error,omitempty"`
}

// ServeHTTP handles GET /api/v1/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	session := h.service.Open(dashboardapp.Identity{
		Subject:   claims.Subject,
		SessionID: claims.SessionID(),
		ExpiresAt: claims.Expiry(),
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates := make(chan dashboardapp.Update, 1)
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx, updates) }()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case update := <-updates:
			event := "snapshot"
			payload := streamPayload{Devices: update.Devices, At: formatTime(update.At)}
			if update.Err != nil {
				event = "error"
				payload.Error = "refresh failed; showing last known readings"
			}
			writeEvent(w, event, payload)
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case err := <-done:
			h.logger.Debug("stream closed",
				zap.String("subject", session.Identity().Subject),
				zap.Error(err))
			if reason := endReason(err); reason != "" {
				writeEvent(w, "end", map[string]string{"reason": reason})
				flusher.Flush()
			}
			return
		}
	}
}

func endReason(err error) string {
	switch {
	case errors.Is(err, dashboardapp.ErrSessionRevoked):
		return "signed_out"
	case errors.Is(err, dashboardapp.ErrSessionExpired):
		return "expired"
	default:
		return ""
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}
