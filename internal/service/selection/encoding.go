package selection

import (
	"encoding/json"
	"strings"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/normalize"
)

// Encoding identifies how a selection string field was written.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	// SelectionEncodingV1 is a JSON array of service ids, written by earlier releases.
	SelectionEncodingV1
	// SelectionEncodingV2 is the comma-joined list of display names written today.
	SelectionEncodingV2
)

func (e Encoding) String() string {
	switch e {
	case SelectionEncodingV1:
		return "v1-json-ids"
	case SelectionEncodingV2:
		return "v2-names"
	}
	return "unknown"
}

// Row keys of the structured selection child table.
const (
	RowService     = "service"
	RowServiceName = "service_name"
)

// Pair zips ids with their resolved names. A missing name falls back to the id.
func Pair(ids, names []string) []domain.ServiceSelection {
	out := make([]domain.ServiceSelection, 0, len(ids))
	for i, id := range ids {
		name := id
		if i < len(names) && strings.TrimSpace(names[i]) != "" {
			name = names[i]
		}
		out = append(out, domain.ServiceSelection{ID: id, Name: name})
	}
	return out
}

// Names returns the display names of a selection list.
func Names(selections []domain.ServiceSelection) []string {
	out := make([]string, 0, len(selections))
	for _, s := range selections {
		out = append(out, s.Name)
	}
	return out
}

// IDs returns the ids of a selection list.
func IDs(selections []domain.ServiceSelection) []string {
	out := make([]string, 0, len(selections))
	for _, s := range selections {
		out = append(out, s.ID)
	}
	return out
}

var nameEscaper = strings.NewReplacer(`\\`, `\\\\`, ",", `\,`)

// Flatten joins names into the string field encoding. Commas and backslashes inside a name
// are escaped with a backslash.
func Flatten(names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			parts = append(parts, nameEscaper.Replace(n))
		}
	}
	return strings.Join(parts, ", ")
}

// ParseSelectionString accepts both string field encodings.
func ParseSelectionString(s string) ([]string, Encoding) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, EncodingUnknown
	}
	if strings.HasPrefix(s, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(s), &ids); err == nil {
			return ids, SelectionEncodingV1
		}
	}
	return splitNames(s), SelectionEncodingV2
}

// splitNames splits on unescaped commas and drops the escapes.
func splitNames(s string) []string {
	var (
		out     []string
		b       strings.Builder
		escaped bool
	)
	flush := func() {
		if p := strings.TrimSpace(b.String()); p != "" {
			out = append(out, p)
		}
		b.Reset()
	}
	for _, r := range s {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	flush()
	return out
}

// Rows renders selections as child table rows.
func Rows(selections []domain.ServiceSelection) []map[string]any {
	out := make([]map[string]any, 0, len(selections))
	for _, s := range selections {
		out = append(out, map[string]any{RowService: s.ID, RowServiceName: s.Name})
	}
	return out
}

// FromRows reads child table rows back. Rows without a service id are dropped.
func FromRows(v any) []domain.ServiceSelection {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]domain.ServiceSelection, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := normalize.String(row, RowService)
		if id == "" {
			continue
		}
		name := normalize.String(row, RowServiceName)
		if name == "" {
			name = id
		}
		out = append(out, domain.ServiceSelection{ID: id, Name: name})
	}
	return out
}
