package changefeed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"soilwatch/internal/telemetry/domain"
)

// wireEvent accepts both the realtime-style {"type","record","old_record"}
// shape and the plain {"event_kind","row"} shape.
type wireEvent struct {
	Type      string          `json:"type"`
	EventKind string          `json:"event_kind"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
	Row       json.RawMessage `json:"row"`
}

// Decode parses one change notification payload.
func Decode(payload []byte) (telemetry.ChangeEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		return telemetry.ChangeEvent{}, fmt.Errorf("%w: %v", telemetry.ErrMalformedEvent, err)
	}

	rawKind := wire.Type
	if rawKind == "" {
		rawKind = wire.EventKind
	}
	kind, err := telemetry.ParseChangeKind(rawKind)
	if err != nil {
		return telemetry.ChangeEvent{}, fmt.Errorf("%w: kind %q", telemetry.ErrMalformedEvent, rawKind)
	}

	row := firstPresent(wire.Record, wire.Row, wire.OldRecord)
	if row == nil {
		return telemetry.ChangeEvent{}, fmt.Errorf("%w: missing row", telemetry.ErrMalformedEvent)
	}
	var reading telemetry.Reading
	if err := json.Unmarshal(row, &reading); err != nil {
		return telemetry.ChangeEvent{}, fmt.Errorf("%w: %v", telemetry.ErrMalformedEvent, err)
	}
	reading.CreatedAt = reading.CreatedAt.UTC()

	event := telemetry.ChangeEvent{Kind: kind, Reading: reading}
	if err := event.Validate(); err != nil {
		return telemetry.ChangeEvent{}, err
	}
	return event, nil
}

func firstPresent(candidates ...json.RawMessage) json.RawMessage {
	for _, candidate := range candidates {
		trimmed := bytes.TrimSpace(candidate)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
			continue
		}
		return trimmed
	}
	return nil
}
