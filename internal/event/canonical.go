package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// MarshalCanonical serializes a payload to canonical JSON for storage.
//
// Canonical form keeps stored payloads byte-stable across process restarts:
//   - Object keys sorted lexicographically
//   - No HTML escaping (< > & are stored as-is)
//   - Integers rendered without exponent notation
//
// Stable bytes make audit diffs and golden tests deterministic.
func MarshalCanonical(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, map[string]any(p)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalPayload parses stored JSON back into a Payload.
// Numbers are decoded as json.Number to avoid float64 precision loss.
func UnmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeCanonicalString(buf, val)
	case json.Number:
		buf.WriteString(val.String())
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		// Integral floats render as integers so round-tripping through
		// encoding/json does not change the stored bytes.
		if val == float64(int64(val)) {
			buf.WriteString(strconv.FormatInt(int64(val), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		}
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Payload:
		return writeCanonical(buf, map[string]any(val))
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString encodes a string without HTML escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	// Encoder appends a newline; strip it to keep output compact.
	buf.Truncate(buf.Len() - 1)
	return nil
}
