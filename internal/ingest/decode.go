package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// decodeJSON decodes a single JSON value. Numbers that are integers become
// int64, all others float64, so stored documents keep integer types.
// Anything after the value other than whitespace is an error.
func decodeJSON(content []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("invalid character after top-level value")
		}
		return nil, err
	}
	return normalizeNumbers(data), nil
}

func normalizeNumbers(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]interface{}:
		for key, child := range v {
			v[key] = normalizeNumbers(child)
		}
		return v
	case []interface{}:
		for i, child := range v {
			v[i] = normalizeNumbers(child)
		}
		return v
	default:
		return value
	}
}
