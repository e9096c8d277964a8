package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timeKey marks an encoded time value inside stored field JSON.
const timeKey = "$time"

func encodeFields(fields map[string]any) (string, error) {
	data, err := json.Marshal(encodeValue(fields))
	if err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}
	return string(data), nil
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return map[string]any{timeKey: val.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = encodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return v
	}
}

func decodeFields(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	out, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	fields, _ := out.(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func decodeValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case map[string]any:
		if s, ok := val[timeKey].(string); ok && len(val) == 1 {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("decoding time %q: %w", s, err)
			}
			return t.UTC(), nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			decoded, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			decoded, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	default:
		return v, nil
	}
}
