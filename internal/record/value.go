package record

import (
	"encoding/json"
	"fmt"
)

// Value is a sealed interface over the closed set of payload value types.
// Only Null, String, Number, Bool, Array, and Object implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null.
// An explicit type keeps nil out of the union entirely.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string payload value.
type String string

func (String) value() {}

// Number represents a numeric payload value. Stored as float64 because
// payloads carry metrics (load averages, token rates); integer ids belong
// in the record id, not the payload.
type Number float64

func (Number) value() {}

// Bool represents a boolean payload value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) value() {}

// Object represents a map of string keys to values.
type Object map[string]Value

func (Object) value() {}

// FromAny converts a decoded JSON value (the output of encoding/json into
// `any`) to a Value. Returns an error for types outside the union.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case bool:
		return Bool(x), nil
	case []any:
		arr := make(Array, 0, len(x))
		for _, el := range x {
			converted, err := FromAny(el)
			if err != nil {
				return nil, err
			}
			arr = append(arr, converted)
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(x))
		for k, el := range x {
			converted, err := FromAny(el)
			if err != nil {
				return nil, err
			}
			obj[k] = converted
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported payload value type %T", v)
	}
}

// ToAny converts a Value back to plain Go types for callers that need to
// hand the payload to encoding/json or database/sql.
func ToAny(v Value) any {
	switch x := v.(type) {
	case Null:
		return nil
	case String:
		return string(x)
	case Number:
		return float64(x)
	case Bool:
		return bool(x)
	case Array:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = ToAny(el)
		}
		return out
	case Object:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = ToAny(el)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON decodes a JSON object into an Object, converting every
// element into the value union.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	converted, err := FromAny(raw)
	if err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	*obj = converted.(Object)
	return nil
}

// EncodePayload serializes a payload object to JSON text for storage.
func EncodePayload(obj Object) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses JSON text back into a payload object.
// Empty text decodes to an empty object.
func DecodePayload(data string) (Object, error) {
	if data == "" || data == "{}" {
		return Object{}, nil
	}
	var obj Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return obj, nil
}
