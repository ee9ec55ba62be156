package remote

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Filter is one ordered (field, operator, value) triple of a list query.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Operator: "=", Value: value}
}

// In builds a membership filter.
func In(field string, values []string) Filter {
	return Filter{Field: field, Operator: "in", Value: values}
}

// Like builds a pattern filter.
func Like(field, pattern string) Filter {
	return Filter{Field: field, Operator: "like", Value: pattern}
}

// MarshalJSON encodes the filter as a JSON triple, the store's wire form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Field, f.Operator, f.Value})
}

// Query narrows a listing.
type Query struct {
	Filters []Filter
	Fields  []string
	Limit   int
	OrderBy string
}

// Values renders the query string. Zero-valued parts are omitted.
func (q Query) Values() (url.Values, error) {
	v := url.Values{}
	if len(q.Filters) > 0 {
		raw, err := json.Marshal(q.Filters)
		if err != nil {
			return nil, err
		}
		v.Set("filters", string(raw))
	}
	if len(q.Fields) > 0 {
		raw, err := json.Marshal(q.Fields)
		if err != nil {
			return nil, err
		}
		v.Set("fields", string(raw))
	}
	if q.Limit > 0 {
		v.Set("limit_page_length", strconv.Itoa(q.Limit))
	}
	if q.OrderBy != "" {
		v.Set("order_by", q.OrderBy)
	}
	return v, nil
}
