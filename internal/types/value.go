package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// =============================================================================
// RECORD VALUE EXTRACTION
// =============================================================================
//
// Record fields arrive from an external analysis step and are heterogeneous:
// the same column may hold an integer in one row, a string in the next and
// null in a third. Value keeps the verbatim JSON encoding of a field so that
// it round-trips unchanged, and exposes typed accessors for the handful of
// fields the query engine inspects.
//
// Supported kinds:
//   - KindNull:      JSON null (and fields built from a nil SQL column)
//   - KindString:    JSON strings
//   - KindInteger:   numbers that parse as int64
//   - KindFloat:     any other number
//   - KindBool:      true / false
//   - KindComposite: objects and arrays, preserved but never inspected

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBool
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single record field.
type Value struct {
	kind Kind
	text string // string contents, or the literal text of a number
	i    int64
	f    float64
	b    bool
	raw  json.RawMessage
}

var nullRaw = json.RawMessage("null")

// Null returns the null value.
func Null() Value {
	return Value{kind: KindNull, raw: nullRaw}
}

// String returns a string value. HTML characters are kept unescaped.
func String(s string) Value {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	raw := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return Value{kind: KindString, text: s, raw: raw}
}

// Int returns an integer value.
func Int(i int64) Value {
	text := strconv.FormatInt(i, 10)
	return Value{kind: KindInteger, text: text, i: i, f: float64(i), raw: json.RawMessage(text)}
}

// Float returns a float value. NaN and infinities have no JSON form and become null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	text := strconv.FormatFloat(f, 'g', -1, 64)
	return Value{kind: KindFloat, text: text, f: f, raw: json.RawMessage(text)}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	text := strconv.FormatBool(b)
	return Value{kind: KindBool, text: text, b: b, raw: json.RawMessage(text)}
}

// ParseValue classifies a raw JSON value. The input is kept verbatim (minus
// surrounding whitespace) for re-encoding.
func ParseValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, fmt.Errorf("empty value")
	}
	if !json.Valid(raw) {
		return Value{}, fmt.Errorf("invalid JSON value: %.40q", raw)
	}
	kept := append(json.RawMessage(nil), raw...)

	switch raw[0] {
	case 'n':
		return Value{kind: KindNull, raw: kept}, nil
	case 't', 'f':
		b := raw[0] == 't'
		return Value{kind: KindBool, text: strconv.FormatBool(b), b: b, raw: kept}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("failed to decode string: %w", err)
		}
		return Value{kind: KindString, text: s, raw: kept}, nil
	case '{', '[':
		return Value{kind: KindComposite, text: string(kept), raw: kept}, nil
	}

	text := string(raw)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Value{kind: KindInteger, text: text, i: i, f: float64(i), raw: kept}, nil
	}
	// A number beyond float64 range keeps its text and raw form; ParseFloat
	// reports it as ±Inf, which no numeric accessor accepts.
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Value{}, fmt.Errorf("failed to decode number %q: %w", text, err)
	}
	return Value{kind: KindFloat, text: text, f: f, raw: kept}, nil
}

// Kind reports the variant held by v. The zero Value is null.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Text returns a string rendering of v: string contents as-is, numbers in
// their literal form, booleans as true/false, null as "". Composite values
// render as their JSON text.
func (v Value) Text() string {
	if v.kind == KindNull {
		return ""
	}
	return v.text
}

// Int64 extracts an integer from v. Integral floats are accepted; strings,
// booleans and fractional numbers are not.
// Returns (value, true) on success, (0, false) if the kind is incompatible.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInteger:
		return v.i, true
	case KindFloat:
		if v.f != math.Trunc(v.f) || v.f < math.MinInt64 || v.f >= math.MaxInt64 {
			return 0, false
		}
		return int64(v.f), true
	default:
		return 0, false
	}
}

// Float64 extracts a number from v. Numbers outside float64 range report false.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInteger, KindFloat:
		if math.IsInf(v.f, 0) {
			return 0, false
		}
		return v.f, true
	default:
		return 0, false
	}
}

// Raw returns the JSON encoding of v.
func (v Value) Raw() json.RawMessage {
	if len(v.raw) == 0 {
		return nullRaw
	}
	return v.raw
}

// Equal reports whether two values have identical kinds and encodings.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && bytes.Equal(v.Raw(), o.Raw())
}

// MarshalJSON emits the verbatim encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.Raw(), nil
}

// UnmarshalJSON classifies and keeps the raw encoding.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromGo converts a scalar produced by database/sql scanning into a Value.
func FromGo(arg interface{}) Value {
	switch x := arg.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case []byte:
		return String(string(x))
	case int64:
		return Int(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case float64:
		return Float(x)
	case float32:
		return Float(float64(x))
	case bool:
		return Bool(x)
	case json.RawMessage:
		if v, err := ParseValue(x); err == nil {
			return v
		}
		return String(string(x))
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// Go returns the natural Go representation of v, the inverse of FromGo for
// scalar kinds. Composite values are returned as their JSON text.
func (v Value) Go() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.text
	case KindInteger:
		return v.i
	case KindFloat:
		if math.IsInf(v.f, 0) {
			return v.text
		}
		return v.f
	case KindBool:
		return v.b
	default:
		return string(v.Raw())
	}
}
