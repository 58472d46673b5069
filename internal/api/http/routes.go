package apihttp

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PublicPaths skip session checks.
var PublicPaths = []string{
	"/healthz",
	"/metrics",
	"/api/v1/auth/sign-in",
	"/api/v1/auth/session",
}

// Handlers groups the dashboard endpoints.
type Handlers struct {
	Auth    *AuthHandler
	Devices *DevicesHandler
	Stream  *StreamHandler
	Export  *ExportHandler
	Metrics http.Handler
}

// Mount registers the endpoints on mux.
func (h Handlers) Mount(mux *http.ServeMux) {
	if h.Auth != nil {
		mux.Handle("/api/v1/auth/", h.Auth)
	}
	if h.Devices != nil {
		mux.Handle("/api/v1/devices", h.Devices)
		mux.Handle("/api/v1/devices/", h.Devices)
	}
	if h.Stream != nil {
		mux.Handle("/api/v1/stream", h.Stream)
	}
	if h.Export != nil {
		mux.Handle("/api/v1/exports/", h.Export)
	}
	if h.Metrics != nil {
		mux.Handle("/metrics", h.Metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working behind the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
