package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Message attribute key and values describing what happened to the document.
const (
	AttrEventType = "event_type"

	EventDocumentCreated = "document.created"
	EventDocumentUpdated = "document.updated"
)

var validate = validator.New()

// ChangeEnvelope is the stable wire shape for a document change. Before and
// After carry the raw document snapshots; Params carries the path placeholders
// of the trigger pattern (projectId, inviteeEmail, ...).
type ChangeEnvelope struct {
	Version    int               `json:"version"`
	EventID    string            `json:"eventId" validate:"required"`
	Document   string            `json:"document" validate:"required"`
	Params     map[string]string `json:"params"`
	OccurredAt time.Time         `json:"occurredAt"`
	Before     json.RawMessage   `json:"before,omitempty"`
	After      json.RawMessage   `json:"after,omitempty"`
}

// Decode parses and validates an envelope from a message body.
func Decode(data []byte) (*ChangeEnvelope, error) {
	var envelope ChangeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding change envelope: %w", err)
	}
	if err := validate.Struct(&envelope); err != nil {
		return nil, fmt.Errorf("validating change envelope: %w", err)
	}
	return &envelope, nil
}

// Param returns a path parameter by name, or "" when absent.
func (e *ChangeEnvelope) Param(name string) string {
	if e == nil || e.Params == nil {
		return ""
	}
	return e.Params[name]
}

// HasBefore reports whether a before snapshot was captured.
func (e *ChangeEnvelope) HasBefore() bool {
	return e != nil && len(e.Before) > 0
}

// HasAfter reports whether an after snapshot was captured.
func (e *ChangeEnvelope) HasAfter() bool {
	return e != nil && len(e.After) > 0
}

// DecodeBefore unmarshals the before snapshot into v.
func (e *ChangeEnvelope) DecodeBefore(v any) error {
	if !e.HasBefore() {
		return fmt.Errorf("envelope has no before snapshot")
	}
	return json.Unmarshal(e.Before, v)
}

// DecodeAfter unmarshals the after snapshot into v.
func (e *ChangeEnvelope) DecodeAfter(v any) error {
	if !e.HasAfter() {
		return fmt.Errorf("envelope has no after snapshot")
	}
	return json.Unmarshal(e.After, v)
}

// BeforeMap returns the before snapshot as a generic field map.
func (e *ChangeEnvelope) BeforeMap() (map[string]any, error) {
	return snapshotMap(e.Before)
}

// AfterMap returns the after snapshot as a generic field map.
func (e *ChangeEnvelope) AfterMap() (map[string]any, error) {
	return snapshotMap(e.After)
}

func snapshotMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding snapshot fields: %w", err)
	}
	return fields, nil
}
