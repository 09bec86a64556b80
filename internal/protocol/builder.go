package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encode renders kind and payload in the line format. The message_type line
// always comes first; the remaining keys are written in sorted order so the
// same payload always produces the same bytes. A message_type key inside the
// payload is ignored.
func Encode(kind string, payload Payload) ([]byte, error) {
	if kind == "" {
		return nil, fmt.Errorf("encode: empty message kind")
	}

	var buf bytes.Buffer
	buf.WriteString(KeyMessageType)
	buf.WriteString(": ")
	buf.WriteString(kind)

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == KeyMessageType {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := FormatValue(payload[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s field %q: %w", kind, k, err)
		}
		buf.WriteByte('\n')
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
	}

	return buf.Bytes(), nil
}

// FormatValue renders a single payload value. Scalars use their natural
// string form, everything else is compact JSON.
func FormatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", val), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return formatFloat(float64(val)), nil
	case float64:
		return formatFloat(val), nil
	case json.Number:
		return val.String(), nil
	}

	data, err := json.Marshal(keepFloats(v))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// keepFloats rewrites floats nested in maps and slices as json.Number in
// their wire form, so 2.0 is marshalled as 2.0 and not 2.
func keepFloats(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsInf(val, 0) || math.IsNaN(val) {
			return val
		}
		return json.Number(formatFloat(val))
	case float32:
		return keepFloats(float64(val))
	case Payload:
		return keepFloats(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = keepFloats(item)
		}
		return out
	case map[string]float64:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = keepFloats(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = keepFloats(item)
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = keepFloats(item)
		}
		return out
	}
	return v
}

// formatFloat keeps a fractional part on integral values so that 2.0 is
// sent as "2.0" and decodes back to a float rather than an integer.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// AckPayload builds the payload of an ACK for seq.
func AckPayload(seq int64) Payload {
	return Payload{KeySequenceNumber: seq}
}

// AnnouncePayload builds the payload of a BROADCAST_ANNOUNCE for a host
// accepting games on gamePort.
func AnnouncePayload(gamePort int) Payload {
	return Payload{KeyPort: gamePort}
}
