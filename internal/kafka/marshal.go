package kafka

import (
	"encoding/json"
	"fmt"
)

// MustMarshal encodes message keys, envelopes and payloads built from the
// service's own types. Those always encode, so a failure is a programming
// error and panics.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("kafka: marshal %T: %v", v, err))
	}
	return b
}

// Decode reads a message value written by MustMarshal.
func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("decode %T: %w", t, err)
	}
	return t, nil
}

// UnwrapPayload decodes an envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	t, err := Decode[T](payload)
	if err != nil {
		return t, fmt.Errorf("payload: %w", err)
	}
	return t, nil
}
