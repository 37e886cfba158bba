// Package optional distinguishes "field not sent" from "field sent as null"
// in partial-update payloads.
package optional

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state value: unset, set to null, or set to a value.
// The zero value is unset.
type Field[T any] struct {
	set   bool
	valid bool
	value T
}

// Of returns a Field set to v.
func Of[T any](v T) Field[T] {
	return Field[T]{set: true, valid: true, value: v}
}

// Null returns a Field explicitly set to null.
func Null[T any]() Field[T] {
	return Field[T]{set: true}
}

// IsSet reports whether the caller supplied the field at all.
func (f Field[T]) IsSet() bool { return f.set }

// IsNull reports whether the field was supplied as an explicit null.
func (f Field[T]) IsNull() bool { return f.set && !f.valid }

// Value returns the value and true when the field carries a non-null value.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.set && f.valid
}

// Ptr returns nil for unset/null, otherwise a pointer to a copy of the value.
func (f Field[T]) Ptr() *T {
	if !f.set || !f.valid {
		return nil
	}
	v := f.value
	return &v
}

// Apply writes the field into dst when it is set. A null clears dst.
func (f Field[T]) Apply(dst **T) {
	if !f.set {
		return
	}
	*dst = f.Ptr()
}

// UnmarshalJSON is only called by encoding/json when the key is present,
// which is exactly what marks the field as set.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.valid = false
		var zero T
		f.value = zero
		return nil
	}
	if err := json.Unmarshal(data, &f.value); err != nil {
		return err
	}
	f.valid = true
	return nil
}

// MarshalJSON writes null for unset and null fields. Use omitzero on the
// struct tag to drop unset fields entirely.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || !f.valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// IsZero lets `json:",omitzero"` skip unset fields.
func (f Field[T]) IsZero() bool { return !f.set }
