package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"soilwatch/internal/audit"
	"soilwatch/internal/observability/metrics"
	telemetry "soilwatch/internal/telemetry/domain"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat normalizes a format name.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Request is one export.
type Request struct {
	From       time.Time
	To         time.Time
	DeviceName string
	Format     Format

	Actor     string
	IP        string
	UserAgent string
}

// Result is a rendered export.
type Result struct {
	Body        []byte
	Rows        int
	ContentType string
	Filename    string
}

// Exporter renders joined readings for a range.
type Exporter struct {
	query  telemetry.ExportQuery
	loc    *time.Location
	audit  audit.Logger
	logger *zap.Logger
}

// ExporterOption configures the exporter.
type ExporterOption func(*Exporter)

// WithAuditLogger records every export.
func WithAuditLogger(logger audit.Logger) ExporterOption {
	return func(e *Exporter) {
		e.audit = logger
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter constructs an exporter rendering timestamps in loc.
func NewExporter(query telemetry.ExportQuery, loc *time.Location, opts ...ExporterOption) (*Exporter, error) {
	if query == nil {
		return nil, errors.New("exporter: nil export query")
	}
	if loc == nil {
		loc = time.UTC
	}
	e := &Exporter{query: query, loc: loc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Location returns the display zone.
func (e *Exporter) Location() *time.Location {
	return e.loc
}

// Export fetches the rows and renders them in the requested format.
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := e.export(ctx, req)
	rows := 0
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
		e.logger.Warn("export failed", zap.String("format", string(req.Format)), zap.Error(err))
	} else {
		rows = result.Rows
	}
	metrics.ObserveExport(string(req.Format), outcome, rows, time.Since(start))
	if err == nil {
		e.logAudit(ctx, req, rows)
	}
	return result, err
}

func (e *Exporter) export(ctx context.Context, req Request) (*Result, error) {
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	if req.From.IsZero() || req.To.IsZero() || req.To.Before(req.From) {
		return nil, ErrInvalidRange
	}
	rows, err := e.query.ListExport(ctx, telemetry.ExportFilter{
		From:       req.From,
		To:         req.To,
		DeviceName: strings.TrimSpace(req.DeviceName),
	})
	if err != nil {
		return nil, fmt.Errorf("export: query: %w", err)
	}

	var body []byte
	switch req.Format {
	case FormatXLSX:
		body, err = BuildXLSX(rows, e.loc)
	case FormatPDF:
		body, err = BuildPDF(rows, e.loc, req.From, req.To)
	default:
		body, err = BuildCSV(rows, e.loc)
	}
	if err != nil {
		return nil, fmt.Errorf("export: render %s: %w", req.Format, err)
	}
	return &Result{
		Body:        body,
		Rows:        len(rows),
		ContentType: req.Format.ContentType(),
		Filename:    e.filename(req),
	}, nil
}

func (e *Exporter) filename(req Request) string {
	return fmt.Sprintf("readings_%s_%s.%s",
		req.From.In(e.loc).Format("20060102T1504"),
		req.To.In(e.loc).Format("20060102T1504"),
		req.Format)
}

func (e *Exporter) logAudit(ctx context.Context, req Request, rows int) {
	if e.audit == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"from":   req.From.UTC().Format(time.RFC3339Nano),
		"to":     req.To.UTC().Format(time.RFC3339Nano),
		"device": req.DeviceName,
		"rows":   rows,
	})
	err := e.audit.Log(ctx, audit.Entry{
		Actor:        req.Actor,
		Action:       audit.ActionExport,
		ExportFormat: string(req.Format),
		DeviceName:   req.DeviceName,
		RangeFrom:    req.From,
		RangeTo:      req.To,
		RowCount:     rows,
		Metadata:     metadata,
		IP:           req.IP,
		UserAgent:    req.UserAgent,
	})
	if err != nil {
		e.logger.Warn("audit log failed", zap.String("action", audit.ActionExport), zap.Error(err))
	}
}
