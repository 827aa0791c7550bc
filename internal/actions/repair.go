package actions

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNotObject = errors.New("json value is not an object")

// DecodeTruncated parses s as a JSON object. When s has trailing garbage or
// was cut short, it retries on every prefix ending in '}', longest first,
// and returns the first that parses. Empty input decodes to an empty object.
func DecodeTruncated(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}

	obj, firstErr := decodeObject(s)
	if firstErr == nil {
		return obj, nil
	}
	for end := strings.LastIndexByte(s, '}'); end >= 0; end = strings.LastIndexByte(s[:end], '}') {
		if obj, err := decodeObject(s[:end+1]); err == nil {
			return obj, nil
		}
	}
	return nil, firstErr
}

// DecodeLastBrace parses s strictly, then retries once on the prefix ending
// at the last '}'.
func DecodeLastBrace(s string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil {
		return v, nil
	}
	end := strings.LastIndexByte(s, '}')
	if end < 0 || end == len(s)-1 {
		return nil, err
	}
	if retryErr := json.Unmarshal([]byte(s[:end+1]), &v); retryErr != nil {
		return nil, err
	}
	return v, nil
}

func decodeObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}
