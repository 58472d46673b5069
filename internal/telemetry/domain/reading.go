package telemetry

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrInvalidReading indicates a reading without device or capture time.
var ErrInvalidReading = errors.New("telemetry: invalid reading")

// Reading is one timestamped sample from one device. Absent channels are nil.
type Reading struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`

	SoilMoisture1 *float64 `json:"soil_moisture_1"`
	SoilMoisture2 *float64 `json:"soil_moisture_2"`
	SoilMoisture3 *float64 `json:"soil_moisture_3"`
	SoilMoisture4 *float64 `json:"soil_moisture_4"`
	Temperature1  *float64 `json:"temperature_1"`
	Temperature2  *float64 `json:"temperature_2"`
	Humidity1     *float64 `json:"humidity_1"`
	Humidity2     *float64 `json:"humidity_2"`
}

// ChannelNames lists the measurement channels in their fixed export order.
var ChannelNames = []string{
	"soil_moisture_1",
	"soil_moisture_2",
	"soil_moisture_3",
	"soil_moisture_4",
	"temperature_1",
	"temperature_2",
	"humidity_1",
	"humidity_2",
}

// Validate checks the fields every reading must carry.
func (r Reading) Validate() error {
	if r.DeviceID == "" || r.CreatedAt.IsZero() {
		return ErrInvalidReading
	}
	return nil
}

// Channels returns the channel values in ChannelNames order.
func (r Reading) Channels() []*float64 {
	return []*float64{
		r.SoilMoisture1,
		r.SoilMoisture2,
		r.SoilMoisture3,
		r.SoilMoisture4,
		r.Temperature1,
		r.Temperature2,
		r.Humidity1,
		r.Humidity2,
	}
}

// ChannelRefs returns pointers to the channel fields in ChannelNames order,
// for scanners that fill a reading column by column.
func (r *Reading) ChannelRefs() []**float64 {
	return []**float64{
		&r.SoilMoisture1,
		&r.SoilMoisture2,
		&r.SoilMoisture3,
		&r.SoilMoisture4,
		&r.Temperature1,
		&r.Temperature2,
		&r.Humidity1,
		&r.Humidity2,
	}
}

// SoilMoisture returns the four soil moisture channels.
func (r Reading) SoilMoisture() []*float64 {
	return []*float64{r.SoilMoisture1, r.SoilMoisture2, r.SoilMoisture3, r.SoilMoisture4}
}

// Temperature returns the two temperature channels.
func (r Reading) Temperature() []*float64 {
	return []*float64{r.Temperature1, r.Temperature2}
}

// Humidity returns the two humidity channels.
func (r Reading) Humidity() []*float64 {
	return []*float64{r.Humidity1, r.Humidity2}
}

// NewerThan reports whether r sorts after other: later created_at, then
// higher id on identical timestamps.
func (r Reading) NewerThan(other Reading) bool {
	if r.CreatedAt.Equal(other.CreatedAt) {
		return r.ID > other.ID
	}
	return r.CreatedAt.After(other.CreatedAt)
}

// ExportRow is a reading joined with its device identity.
type ExportRow struct {
	Reading
	ExternalID string
	DeviceName string
}

// ExportFilter selects readings for export. Both bounds are inclusive.
type ExportFilter struct {
	From       time.Time
	To         time.Time
	DeviceName string
}

// ReadingQuery loads readings for the live dashboard and charts.
type ReadingQuery interface {
	// ListRecent returns up to perDevice newest readings per device, newest first.
	ListRecent(ctx context.Context, deviceIDs []string, perDevice int) ([]Reading, error)
	// ListHistory returns readings of one device within [from, to], oldest first.
	ListHistory(ctx context.Context, deviceID string, from, to time.Time) ([]Reading, error)
}

// ExportQuery loads joined readings for exports.
type ExportQuery interface {
	ListExport(ctx context.Context, filter ExportFilter) ([]ExportRow, error)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Finite reports whether v is neither NaN nor infinite. Non-finite channel
// values are treated as absent.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
