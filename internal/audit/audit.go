package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions recorded by the dashboard.
const (
	ActionSignIn  = "auth.sign_in"
	ActionSignOut = "auth.sign_out"
	ActionExport  = "readings.export"
)

// Entry is one audited action. Sign-in and sign-out carry SessionID; exports
// carry the format, device filter, range and row count.
type Entry struct {
	ID            string
	Actor         string
	Action        string
	SessionID     string
	ExportFormat  string
	DeviceName    string
	RangeFrom     time.Time
	RangeTo       time.Time
	RowCount      int
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ZapLogger writes audit entries to a structured log. It backs deployments
// without an audit table.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger constructs a log-backed audit logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// Log writes entry at info level.
func (l *ZapLogger) Log(ctx context.Context, entry Entry) error {
	fields := []zap.Field{
		zap.String("actor", entry.Actor),
	}
	if entry.SessionID != "" {
		fields = append(fields, zap.String("session_id", entry.SessionID))
	}
	if entry.ExportFormat != "" {
		fields = append(fields,
			zap.String("format", entry.ExportFormat),
			zap.String("device", entry.DeviceName),
			zap.Time("from", entry.RangeFrom),
			zap.Time("to", entry.RangeTo),
			zap.Int("rows", entry.RowCount),
		)
	}
	fields = append(fields,
		zap.ByteString("metadata", entry.Metadata),
		zap.String("ip", entry.IP),
	)
	l.logger.Info(entry.Action, fields...)
	return nil
}
