package eventx

import (
	"encoding/json"
	"strings"
	"time"
)

// Envelope is the wire form of an event on queues and topics. Key repeats
// the partition key at the top level so consumers can route a message
// without decoding its metadata.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Seal wraps event in an Envelope
func Seal(event Event) (*Envelope, error) {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, serializationError(err, event.ID(), event.Type())
	}
	return &Envelope{
		ID:        event.ID(),
		Type:      event.Type(),
		Key:       KeyOf(event),
		Timestamp: event.Timestamp(),
		Source:    event.Source(),
		Version:   event.Version(),
		Data:      data,
		Metadata:  event.Metadata(),
	}, nil
}

// Open decodes the payload of env. An envelope without id or type is
// rejected, and the top-level key is restored into the metadata.
func Open[T any](env *Envelope) (TypedEvent[T], error) {
	if env.ID == "" || env.Type == "" {
		return nil, ErrorRegistry.New(ErrSerializationFailed).
			WithDetail("reason", "envelope without id or type")
	}

	var data T
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, serializationError(err, env.ID, env.Type)
	}

	meta := make(map[string]any, len(env.Metadata)+1)
	for k, v := range env.Metadata {
		meta[k] = v
	}
	if _, ok := meta[MetaKey]; !ok && env.Key != "" {
		meta[MetaKey] = env.Key
	}

	return NewEventWithID(env.ID, env.Type, data, env.Timestamp, EventOptions{
		Source:   env.Source,
		Version:  env.Version,
		Metadata: meta,
	}), nil
}

// ToJSON encodes event as an Envelope
func ToJSON(event Event) ([]byte, error) {
	env, err := Seal(event)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, serializationError(err, event.ID(), event.Type())
	}
	return out, nil
}

// FromJSON decodes an Envelope carrying a T
func FromJSON[T any](data []byte) (TypedEvent[T], error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrorRegistry.New(ErrSerializationFailed).
			WithCause(err).
			WithDetail("operation", "unmarshal_envelope")
	}
	return Open[T](&env)
}

// FromJSONPrefixed decodes like FromJSON but only accepts event types
// starting with typePrefix, so a queue shared with other producers cannot
// feed a consumer the wrong payload.
func FromJSONPrefixed[T any](data []byte, typePrefix string) (TypedEvent[T], error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrorRegistry.New(ErrSerializationFailed).
			WithCause(err).
			WithDetail("operation", "unmarshal_envelope")
	}
	if !strings.HasPrefix(env.Type, typePrefix) {
		return nil, ErrorRegistry.New(ErrInvalidEventType).
			WithDetail("event_id", env.ID).
			WithDetail("event_type", env.Type).
			WithDetail("expected_prefix", typePrefix)
	}
	return Open[T](&env)
}

func serializationError(cause error, id, eventType string) error {
	return ErrorRegistry.New(ErrSerializationFailed).
		WithCause(cause).
		WithDetail("event_id", id).
		WithDetail("event_type", eventType)
}
