package trace

import (
	"encoding/json"
	"math"
	"strconv"
)

// Float is an optional measurement. A zero Float is undefined, which is
// distinct from a measured 0.
type Float struct {
	Value float64
	Valid bool
}

// Undefined is the zero Float.
var Undefined = Float{}

// Known wraps a measured value. NaN and infinities are treated as undefined.
func Known(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Float{Value: v, Valid: true}
}

// Get returns the value and whether it is defined.
func (f Float) Get() (float64, bool) {
	return f.Value, f.Valid
}

// Or returns the value, or def when undefined.
func (f Float) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.Value
}

// String renders the value, or "N/A" when undefined.
func (f Float) String() string {
	if !f.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// MarshalJSON encodes undefined values as null.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON accepts a number or null.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Known(v)
	return nil
}
