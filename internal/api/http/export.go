package apihttp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"soilwatch/internal/audit"
	"soilwatch/internal/auth"
	"soilwatch/internal/export"
)

const exportPathPrefix = "/api/v1/exports/readings."

// ExportHandler serves reading exports as csv, xlsx or pdf.
type ExportHandler struct {
	exporter *export.Exporter
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exporter *export.Exporter) (*ExportHandler, error) {
	if exporter == nil {
		return nil, errors.New("export handler: nil exporter")
	}
	return &ExportHandler{exporter: exporter}, nil
}

// ServeHTTP handles GET /api/v1/exports/readings.{csv,xlsx,pdf}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.URL.Path, exportPathPrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	format, err := export.ParseFormat(strings.TrimPrefix(r.URL.Path, exportPathPrefix))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	query := r.URL.Query()
	from, to, err := export.ParseRange(query.Get("from"), query.Get("to"), h.exporter.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.exporter.Export(r.Context(), export.Request{
		From:       from,
		To:         to,
		DeviceName: query.Get("device"),
		Format:     format,
		Actor:      auth.EmailFromContext(r.Context()),
		IP:         audit.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("X-Export-Rows", fmt.Sprint(result.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}
