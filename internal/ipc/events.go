// Package ipc carries daemon control events over a Unix domain socket.
//
// Protocol: line-delimited JSON.
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is a marker interface for everything the daemon loop consumes.
type Event interface {
	eventMarker()
}

// ShakeDetected reports one shake gesture.
type ShakeDetected struct {
	Source string `json:"source,omitempty"` // e.g. "evdev", "ipc"
}

func (ShakeDetected) eventMarker() {}

// RefreshSettings asks the daemon to re-read the gesture settings.
type RefreshSettings struct{}

func (RefreshSettings) eventMarker() {}

// SetSetting writes a setting through the configured backend.
type SetSetting struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

func (SetSetting) eventMarker() {}

// Event type discriminators.
const (
	TypeShakeDetected   = "shake_detected"
	TypeRefreshSettings = "refresh_settings"
	TypeSetSetting      = "set_setting"
)

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TypeOf returns the wire discriminator of e, or "" for unknown events.
func TypeOf(e Event) string {
	switch e.(type) {
	case ShakeDetected:
		return TypeShakeDetected
	case RefreshSettings:
		return TypeRefreshSettings
	case SetSetting:
		return TypeSetSetting
	default:
		return ""
	}
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeShakeDetected:
		var e ShakeDetected
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &e); err != nil {
				return nil, fmt.Errorf("unmarshal ShakeDetected: %w", err)
			}
		}
		return e, nil

	case TypeRefreshSettings:
		return RefreshSettings{}, nil

	case TypeSetSetting:
		var e SetSetting
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetSetting: %w", err)
		}
		if e.Key == "" {
			return nil, errors.New("set_setting: key is required")
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	env := EventEnvelope{Type: TypeOf(e)}

	switch e := e.(type) {
	case ShakeDetected:
		if e.Source != "" {
			data, err := json.Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("marshal ShakeDetected: %w", err)
			}
			env.Data = data
		}

	case RefreshSettings:

	case SetSetting:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetSetting: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
