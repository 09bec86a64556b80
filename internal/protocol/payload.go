package protocol

import (
	"math"
	"strconv"
)

// Payload is the key/value body of a message. Decoded values are int64,
// float64, string, map[string]any or []any.
type Payload map[string]any

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns the value at key as an integer. Integral floats and numeric
// strings are accepted.
func (p Payload) Int(key string) (int64, bool) {
	return toInt(p[key])
}

// Float returns the value at key as a float.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// String returns the value at key rendered as text. Scalars that were
// recovered as numbers come back in their wire form.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	s, err := FormatValue(v)
	return s, err == nil
}

// Map returns the nested mapping at key.
func (p Payload) Map(key string) (Payload, bool) {
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v), true
	case Payload:
		return v, true
	}
	return nil, false
}

// Sequence returns the nested sequence at key.
func (p Payload) Sequence(key string) ([]any, bool) {
	v, ok := p[key].([]any)
	return v, ok
}

// Has reports whether key is present.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
