package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrNotNumeric is returned when a value cannot be coerced to float64.
var ErrNotNumeric = errors.New("value is not numeric")

// Record is a flat wildfire-event attribute map. A nil value means absent.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Missing reports whether the attribute is absent, nil, or a non-finite number.
func (r Record) Missing(name string) bool {
	v, ok := r[name]
	if !ok || v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f) || math.IsInf(f, 0)
	}
	return false
}

// Float returns the attribute as float64. ok is false when the value is
// missing; err is set when it is present but not numeric.
func (r Record) Float(name string) (f float64, ok bool, err error) {
	if r.Missing(name) {
		return math.NaN(), false, nil
	}
	f, err = ToFloat(r[name])
	if err != nil {
		return math.NaN(), false, fmt.Errorf("%s: %w", name, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return math.NaN(), false, nil
	}
	return f, true, nil
}

// String returns the attribute as a string, formatting numbers if needed.
// ok is false for missing and empty values.
func (r Record) String(name string) (string, bool) {
	if r.Missing(name) {
		return "", false
	}
	s := ToString(r[name])
	return s, s != ""
}

// ToFloat coerces Go numeric types, json.Number and numeric strings.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN(), fmt.Errorf("%w: %q", ErrNotNumeric, x.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN(), fmt.Errorf("%w: %q", ErrNotNumeric, x)
		}
		return f, nil
	default:
		return math.NaN(), fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

// ToString renders a scalar as a string. Integral floats print without a
// fractional part so "6" and 6.0 compare equal as categories.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Finite replaces NaN and ±Inf float values with nil so the record can be
// serialized and consumed without numeric errors.
func (r Record) Finite() Record {
	for k, v := range r {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			r[k] = nil
		}
	}
	return r
}
