package solver

import (
	"encoding/json"
	"math"
)

// JSONFloat is a float64 encoded as null when it is NaN or infinite, which
// JSON cannot represent. Diverging solves produce such values.
type JSONFloat float64

// MarshalJSON implements json.Marshaler.
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// JSONFloats converts xs, keeping nil as nil.
func JSONFloats(xs []float64) []JSONFloat {
	if xs == nil {
		return nil
	}
	out := make([]JSONFloat, len(xs))
	for i, v := range xs {
		out[i] = JSONFloat(v)
	}
	return out
}

// MarshalJSON encodes the state with non-finite numbers as null. Decoding
// such a document into a State leaves those numbers at zero.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	var params map[string]any
	if len(s.Parameters) > 0 {
		params = make(map[string]any, len(s.Parameters))
		for k, v := range s.Parameters {
			switch v := v.(type) {
			case float64:
				params[k] = JSONFloat(v)
			case []float64:
				params[k] = JSONFloats(v)
			default:
				params[k] = v
			}
		}
	}
	return json.Marshal(struct {
		plain
		X                   []JSONFloat    `json:"x"`
		Value               JSONFloat      `json:"value"`
		ConstraintViolation []JSONFloat    `json:"constraint_violation,omitempty"`
		Parameters          map[string]any `json:"parameters,omitempty"`
	}{
		plain:               plain(s),
		X:                   JSONFloats(s.X),
		Value:               JSONFloat(s.Value),
		ConstraintViolation: JSONFloats(s.ConstraintViolation),
		Parameters:          params,
	})
}
