package export

import (
	"strconv"
	"time"

	telemetry "soilwatch/internal/telemetry/domain"
)

// Header is the fixed column order of every export format.
func Header() []string {
	header := []string{"date", "time", "external_id", "name"}
	return append(header, telemetry.ChannelNames...)
}

// Fields renders one export row in Header order. Timestamps are shown in
// loc; absent channels are empty.
func Fields(row telemetry.ExportRow, loc *time.Location) []string {
	at := row.CreatedAt.In(loc)
	fields := []string{
		at.Format("2006-01-02"),
		at.Format("15:04:05"),
		row.ExternalID,
		row.DeviceName,
	}
	for _, value := range row.Channels() {
		fields = append(fields, formatValue(value))
	}
	return fields
}

func formatValue(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
