package mcp

import (
	"encoding/json"

	"stockd/internal/types"
)

// Params is the parameter object of a request, values kept raw until a
// method asks for them.
type Params map[string]json.RawMessage

// Has reports whether key is present with a non-null value. A JSON null
// counts as absent.
func (p Params) Has(key string) bool {
	raw, ok := p[key]
	return ok && !isNull(raw)
}

// value classifies a present parameter.
func (p Params) value(key string) (types.Value, *Error) {
	if !p.Has(key) {
		return types.Value{}, newError(KindValidation, "%s parameter is required", key)
	}
	v, err := types.ParseValue(p[key])
	if err != nil {
		return types.Value{}, newError(KindValidation, "%s parameter is invalid: %v", key, err)
	}
	return v, nil
}

// Text returns a parameter coerced to a string: strings as-is, numbers in
// their literal form, booleans as true/false. The empty string is a valid
// value. Objects and arrays are rejected.
func (p Params) Text(key string) (string, *Error) {
	v, perr := p.value(key)
	if perr != nil {
		return "", perr
	}
	if v.Kind() == types.KindComposite {
		return "", newError(KindValidation, "%s parameter must be a string", key)
	}
	return v.Text(), nil
}

// Integer returns a parameter as an integer. ok is false when the value is
// present but not an integral number; such a value is still a valid filter
// that matches nothing. label is the value's text for messages.
func (p Params) Integer(key string) (n int64, ok bool, label string, perr *Error) {
	v, perr := p.value(key)
	if perr != nil {
		return 0, false, "", perr
	}
	n, ok = v.Int64()
	return n, ok, v.Text(), nil
}
