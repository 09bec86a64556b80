package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformed is returned by Decode for datagrams that are not valid text or
// carry no message_type. Receivers drop such packets.
var ErrMalformed = errors.New("malformed message")

// Decode parses a datagram into its kind and the full payload mapping, which
// still contains the message_type key. Lines without a ": " separator are
// skipped. Values are recovered by ParseValue; the message_type value is kept
// verbatim.
func Decode(data []byte) (string, Payload, error) {
	if len(data) == 0 || !utf8.Valid(data) {
		return "", Payload{}, ErrMalformed
	}

	payload := make(Payload)
	for _, line := range strings.Split(string(data), "\n") {
		key, raw, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if key == KeyMessageType {
			payload[key] = raw
			continue
		}
		payload[key] = ParseValue(raw)
	}

	kind, _ := payload[KeyMessageType].(string)
	if kind == "" {
		return "", Payload{}, ErrMalformed
	}
	return kind, payload, nil
}

// ParseValue applies type recovery to a raw value: JSON for values starting
// with '{' or '[' (left as a string if the JSON is invalid), then integer,
// then float, then string. A numeric-looking string such as "007" therefore
// comes back as the integer 7.
func ParseValue(raw string) any {
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		if v, err := parseJSON(raw); err == nil {
			return v
		}
		return raw
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func parseJSON(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return normalizeJSON(v), nil
}

// normalizeJSON turns json.Number leaves into int64 where possible and
// float64 otherwise, so nested values have the same types as top-level ones.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	}
	return v
}
