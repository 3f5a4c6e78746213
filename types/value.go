package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// A ValueKind tags the concrete type held by a Value.
type ValueKind uint8

// Possible value kinds.
const (
	ValueNone ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
)

// A Value is the loosely-typed payload carried by a device and its broker
// feed. The external broker transports every value as a string; ParseValue
// recovers the most specific type (bool, then int, then float, then string),
// matching how the broker sync path has always interpreted feed data.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
}

// BoolValue returns a Value holding a bool.
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// IntValue returns a Value holding an int.
func IntValue(i int64) Value { return Value{kind: ValueInt, i: i} }

// FloatValue returns a Value holding a float.
func FloatValue(f float64) Value { return Value{kind: ValueFloat, f: f} }

// StringValue returns a Value holding a string.
func StringValue(s string) Value { return Value{kind: ValueString, s: s} }

// ParseValue parses a raw broker string into the most specific Value kind:
// bool, then int, then float, with string as the fallback.
func ParseValue(raw string) Value {
	switch raw {
	case "true", "True", "TRUE":
		return BoolValue(true)
	case "false", "False", "FALSE":
		return BoolValue(false)
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return FloatValue(f)
	}
	return StringValue(raw)
}

// Kind returns the kind of the held value.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether the Value holds nothing.
func (v Value) IsZero() bool { return v.kind == ValueNone }

// Num returns the value as a float64. The second return is false if the
// Value does not hold a numeric kind.
func (v Value) Num() (float64, bool) {
	switch v.kind {
	case ValueInt:
		return float64(v.i), true
	case ValueFloat:
		return v.f, true
	}
	return 0, false
}

// Bool returns the held bool. The second return is false for non-bool kinds.
func (v Value) Bool() (bool, bool) {
	if v.kind == ValueBool {
		return v.b, true
	}
	return false, false
}

// String returns the broker wire form of the value. Strings are returned
// verbatim; this is what the broker feed receives on Send.
func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueString:
		return v.s
	}
	return ""
}

// Positive reports whether the value is a number greater than zero or the
// literal "ON". Used to derive a device's status from a synced feed value.
func (v Value) Positive() bool {
	if n, ok := v.Num(); ok {
		return n > 0
	}
	return v.kind == ValueString && v.s == "ON"
}

// MarshalJSON writes the value in its native JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueBool:
		return json.Marshal(v.b)
	case ValueInt:
		return json.Marshal(v.i)
	case ValueFloat:
		return json.Marshal(v.f)
	case ValueString:
		return json.Marshal(v.s)
	}
	return []byte("null"), nil
}

// UnmarshalJSON reads a JSON bool, number or string into the Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case nil:
		*v = Value{}
	case bool:
		*v = BoolValue(typed)
	case float64:
		if typed == float64(int64(typed)) {
			*v = IntValue(int64(typed))
		} else {
			*v = FloatValue(typed)
		}
	case string:
		*v = StringValue(typed)
	default:
		return fmt.Errorf("cannot unmarshal %T into Value", raw)
	}
	return nil
}

// Value implements driver.Valuer; values are stored in their wire form.
func (v Value) Value() (driver.Value, error) {
	if v.kind == ValueNone {
		return nil, nil
	}
	return v.String(), nil
}

// Scan implements sql.Scanner, re-parsing the stored wire form.
func (v *Value) Scan(src interface{}) error {
	switch typed := src.(type) {
	case nil:
		*v = Value{}
		return nil
	case string:
		*v = ParseValue(typed)
		return nil
	case []byte:
		*v = ParseValue(string(typed))
		return nil
	case int64:
		*v = IntValue(typed)
		return nil
	case float64:
		*v = FloatValue(typed)
		return nil
	}
	return fmt.Errorf("cannot scan %T into Value", src)
}
