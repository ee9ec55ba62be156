package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// String returns the first non-empty value among several field names for one concept.
func String(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

// Bool returns the first present value among several field names, interpreted as a flag.
// The second result is false when none of the fields is present.
func Bool(rec map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		return truthy(v), true
	}
	return false, false
}

// Active interprets the activity flags of a catalog row. A row without any flag is active.
func Active(rec map[string]any) bool {
	if disabled, ok := Bool(rec, "disabled"); ok {
		return !disabled
	}
	if active, ok := Bool(rec, "custom_is_active", "is_active", "enabled"); ok {
		return active
	}
	return true
}

// DisplayName prefers the human-readable name fields of a catalog row and falls back to id.
func DisplayName(rec map[string]any, id string) string {
	if name := String(rec, "service_name", "company_type_name", "title", "description"); name != "" {
		return name
	}
	return id
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
	}
	return false
}
