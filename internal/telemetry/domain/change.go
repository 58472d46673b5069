package telemetry

import (
	"errors"
	"strings"
)

// ErrMalformedEvent is returned for change events missing required fields.
var ErrMalformedEvent = errors.New("telemetry: malformed change event")

// ErrUnknownChangeKind is returned for unrecognised change kinds.
var ErrUnknownChangeKind = errors.New("telemetry: unknown change kind")

// ChangeKind is the kind of row change delivered by the change feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ParseChangeKind normalizes a wire change kind ("INSERT", "insert", ...).
func ParseChangeKind(value string) (ChangeKind, error) {
	switch ChangeKind(strings.ToLower(strings.TrimSpace(value))) {
	case ChangeInsert:
		return ChangeInsert, nil
	case ChangeUpdate:
		return ChangeUpdate, nil
	case ChangeDelete:
		return ChangeDelete, nil
	default:
		return "", ErrUnknownChangeKind
	}
}

// ChangeEvent is one change notification for the readings collection.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	Reading Reading    `json:"reading"`
}

// Validate reports ErrMalformedEvent when the event cannot be reconciled.
func (e ChangeEvent) Validate() error {
	if _, err := ParseChangeKind(string(e.Kind)); err != nil {
		return ErrMalformedEvent
	}
	if e.Reading.Validate() != nil {
		return ErrMalformedEvent
	}
	return nil
}
