package schema

import (
	"github.com/canonical/landscape-client-sub002/errors"
)

// ErrInvalidSchema is the sentinel compared with errors.Is when a message
// payload fails to coerce against its registered schema.
var ErrInvalidSchema = errors.New("schema: invalid payload")

// Schema instances validate and coerce a raw value into its canonical
// representation. Coerce is pure: on success it returns a brand-new value,
// never the input passed in; on failure it returns ErrInvalidSchema
// (wrapped with a descriptive hint).
type Schema interface {
	Coerce(v any) (any, error)
}

func invalid(hint string) error {
	err := errors.WithStack(ErrInvalidSchema)
	var e *errors.Error
	if errors.As(err, &e) {
		e.AddHint(hint)
	}
	return err
}

// Const matches only a single, fixed value (compared with ==).
type Const struct {
	Value any
}

// Coerce implements Schema.
func (c Const) Coerce(v any) (any, error) {
	if v != c.Value {
		return nil, invalid("value does not match constant")
	}
	return c.Value, nil
}

// AnyOf succeeds if any of the listed sub-schemas accepts the value; the
// first match wins.
type AnyOf struct {
	Options []Schema
}

// Coerce implements Schema.
func (a AnyOf) Coerce(v any) (any, error) {
	for _, opt := range a.Options {
		if out, err := opt.Coerce(v); err == nil {
			return out, nil
		}
	}
	return nil, invalid("value does not match any allowed variant")
}

// Bool matches boolean values.
type Bool struct{}

// Coerce implements Schema.
func (Bool) Coerce(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, invalid("expected bool")
	}
	return b, nil
}

// Int matches integer values; common Go integer types are normalized to int64.
type Int struct{}

// Coerce implements Schema.
func (Int) Coerce(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return nil, invalid("expected int")
	}
}

// Float matches floating point values; int-like inputs are widened.
type Float struct{}

// Coerce implements Schema.
func (Float) Coerce(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return nil, invalid("expected float")
	}
}

// Bytes matches raw byte strings.
type Bytes struct{}

// Coerce implements Schema.
func (Bytes) Coerce(v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, invalid("expected bytes")
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Text matches UTF-8 text.
type Text struct{}

// Coerce implements Schema.
func (Text) Coerce(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, invalid("expected text")
	}
	return s, nil
}

// BytesOrText accepts either a byte string or text; byte strings are
// decoded into text using Charset (defaults to UTF-8 semantics: the bytes
// are trusted to already be valid UTF-8, matching the historical client's
// lenient decode-on-write behavior). A decode failure produces a
// structured ErrInvalidSchema, never a panic.
type BytesOrText struct {
	Charset string
}

// Coerce implements Schema.
func (bt BytesOrText) Coerce(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return decodeCharset(val, bt.Charset)
	default:
		return nil, invalid("expected bytes or text")
	}
}

// List matches a homogeneous slice whose elements all satisfy Elem.
type List struct {
	Elem Schema
}

// Coerce implements Schema.
func (l List) Coerce(v any) (any, error) {
	items, ok := asSlice(v)
	if !ok {
		return nil, invalid("expected list")
	}
	out := make([]any, len(items))
	for i, item := range items {
		coerced, err := l.Elem.Coerce(item)
		if err != nil {
			return nil, invalid("list element failed to coerce")
		}
		out[i] = coerced
	}
	return out, nil
}

// Tuple matches a fixed-length, positionally-typed slice.
type Tuple struct {
	Elems []Schema
}

// Coerce implements Schema.
func (t Tuple) Coerce(v any) (any, error) {
	items, ok := asSlice(v)
	if !ok || len(items) != len(t.Elems) {
		return nil, invalid("expected tuple of matching length")
	}
	out := make([]any, len(items))
	for i, s := range t.Elems {
		coerced, err := s.Coerce(items[i])
		if err != nil {
			return nil, invalid("tuple element failed to coerce")
		}
		out[i] = coerced
	}
	return out, nil
}

// KeyDict matches a fixed-key map. Every key in Keys is required unless
// listed in Optional; unknown keys are rejected.
type KeyDict struct {
	Keys     map[string]Schema
	Optional map[string]bool
}

// Coerce implements Schema.
func (kd KeyDict) Coerce(v any) (any, error) {
	return coerceKeyDict(v, kd.Keys, kd.Optional)
}

// coerceKeyDict is the shared fixed-key-map coercion routine used by both
// KeyDict and Message: unknown keys are rejected, missing required keys are
// rejected, and every present key is coerced against its schema.
func coerceKeyDict(v any, keys map[string]Schema, optional map[string]bool) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("expected map")
	}
	for k := range m {
		if _, known := keys[k]; !known {
			return nil, invalid("unknown key: " + k)
		}
	}
	out := make(map[string]any, len(keys))
	for k, s := range keys {
		raw, present := m[k]
		if !present {
			if optional[k] {
				continue
			}
			return nil, invalid("missing required key: " + k)
		}
		coerced, err := s.Coerce(raw)
		if err != nil {
			return nil, invalid("key " + k + " failed to coerce")
		}
		out[k] = coerced
	}
	return out, nil
}

// Dict matches an open map: every key must satisfy Key, every value Value.
type Dict struct {
	Key   Schema
	Value Schema
}

// Coerce implements Schema.
func (d Dict) Coerce(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("expected map")
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		ck, err := d.Key.Coerce(k)
		if err != nil {
			return nil, invalid("map key failed to coerce")
		}
		cv, err := d.Value.Coerce(val)
		if err != nil {
			return nil, invalid("map value failed to coerce")
		}
		sk, ok := ck.(string)
		if !ok {
			return nil, invalid("map key did not coerce to text")
		}
		out[sk] = cv
	}
	return out, nil
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

func decodeCharset(b []byte, charset string) (string, error) {
	switch charset {
	case "", "utf-8", "utf8", "UTF-8":
		return string(b), nil
	default:
		return "", invalid("unsupported charset: " + charset)
	}
}
