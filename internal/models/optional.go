// internal/models/optional.go
package models

import (
	"bytes"
	"encoding/json"
)

// Optional is one field of a partial update. It separates a key that is
// absent (Set=false), a key sent as JSON null (Null=true) and a value.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Get returns the carried value, or the zero value for null.
func (o Optional[T]) Get() T {
	if o.Null {
		var zero T
		return zero
	}
	return o.Value
}

// IsZero lets `omitzero` drop absent keys when marshalling.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Null = true
		o.Value = zero
		return nil
	}

	o.Null = false
	return json.Unmarshal(data, &o.Value)
}
