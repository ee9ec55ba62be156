package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Unwrap canonicalizes a list response. The store answers with a "data" list, a bare list or a
// "message" list depending on the endpoint; the first non-empty one wins. An empty or absent
// body yields an empty list. Elements that are not objects are skipped.
func Unwrap(body []byte) ([]Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []Record{}, nil
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode list envelope: %w", err)
	}

	candidates := make([]any, 0, 3)
	switch v := raw.(type) {
	case map[string]any:
		candidates = append(candidates, v["data"], nil, v["message"])
	case []any:
		candidates = append(candidates, nil, v)
	}
	for _, c := range candidates {
		list, ok := c.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		return records(list), nil
	}
	return []Record{}, nil
}

// UnwrapOne canonicalizes a single-record response: a "data" object, a "message" object or the
// body itself. Nil is returned for an empty body.
func UnwrapOne(body []byte) (Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode record envelope: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode record envelope: expected object, got %T", raw)
	}
	if data, ok := obj["data"].(map[string]any); ok {
		return data, nil
	}
	if msg, ok := obj["message"].(map[string]any); ok {
		return msg, nil
	}
	return obj, nil
}

func records(list []any) []Record {
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}
