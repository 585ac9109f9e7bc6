// Package flash queues one-time web notices during a request and carries
// them across redirects through a session slot.
//
// Messages added while handling a request live in a request-scoped Store.
// At the end of the request they are either rendered into a JSON envelope
// (AJAX) or persisted through a Bridge so the next page render can consume
// them exactly once.
package flash

import (
	"encoding/json"
	"strings"
)

// DefaultKey is the session key that holds pending messages.
const DefaultKey = "RD_MSG"

// Type classifies flash message presentation.
type Type string

const (
	TypeError   Type = "error"
	TypeSuccess Type = "success"
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
)

// ParseType normalizes a raw type name. Unknown names are rejected.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TypeError, TypeSuccess, TypeInfo, TypeWarning:
		return t, true
	default:
		return "", false
	}
}

// Message stores one queued notice.
//
// Value is nil for structured-only entries added with AddBatch; Data then
// carries the payload (for example field-level validation errors).
type Message struct {
	Type  Type    `json:"type"`
	Value *string `json:"value"`
	Data  any     `json:"data"`
}

// Text returns the message value or an empty string for structured entries.
func (m Message) Text() string {
	if m.Value == nil {
		return ""
	}
	return *m.Value
}

// HasValue reports whether the message carries human-readable text.
func (m Message) HasValue() bool {
	return m.Value != nil
}

// DataString returns a string field from a map-shaped Data payload.
func (m Message) DataString(key string) (string, bool) {
	value, ok := m.dataField(key).(string)
	return value, ok
}

// DataBool reports whether a map-shaped Data payload has a truthy key.
func (m Message) DataBool(key string) bool {
	switch v := m.dataField(key).(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return true
	}
}

// dataField looks key up in Data. Same-request messages keep the caller's
// map type while decoded ones always hold map[string]any.
func (m Message) dataField(key string) any {
	switch fields := m.Data.(type) {
	case map[string]any:
		return fields[key]
	case map[string]string:
		if value, ok := fields[key]; ok {
			return value
		}
	}
	return nil
}

// Text builds a message with a text value.
func Text(t Type, value string) Message {
	return Message{Type: t, Value: &value}
}

func encodeMessages(messages []Message) ([]byte, error) {
	return json.Marshal(messages)
}

func decodeMessages(raw []byte) ([]Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
