package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apipatb/earning-sub011/internal/segment/domain"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindDate
)

type field struct {
	column string
	kind   fieldKind
}

// fields maps rule field names to customer columns. Anything else is rejected.
var fields = map[string]field{
	"name":    {column: "name", kind: kindString},
	"email":   {column: "email", kind: kindString},
	"phone":   {column: "phone", kind: kindString},
	"company": {column: "company", kind: kindString},
	"city":    {column: "city", kind: kindString},
	"country": {column: "country", kind: kindString},
	"source":  {column: "source", kind: kindString},

	"totalPurchases": {column: "total_purchases", kind: kindNumber},
	"purchaseCount":  {column: "purchase_count", kind: kindNumber},
	"totalQuantity":  {column: "total_quantity", kind: kindNumber},

	"lastPurchaseDate": {column: "last_purchase_at", kind: kindDate},
	"createdAt":        {column: "created_at", kind: kindDate},
}

func lookupField(name string) (field, error) {
	f, ok := fields[strings.TrimSpace(name)]
	if !ok {
		return field{}, fmt.Errorf("%w: %q", domain.ErrInvalidRuleField, name)
	}
	return f, nil
}

// isNull reports a missing value or a JSON null. json.Unmarshal accepts null
// into any target as a no-op, so it has to be rejected up front.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// scalar decodes a single rule value for the field kind.
func (f field) scalar(raw json.RawMessage, now time.Time) (any, error) {
	if isNull(raw) {
		return nil, invalidValue(raw)
	}
	switch f.kind {
	case kindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalidValue(raw)
		}
		return s, nil
	case kindNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return parsed, nil
			}
		}
		return nil, invalidValue(raw)
	case kindDate:
		return parseDate(raw, now)
	}
	return nil, invalidValue(raw)
}

// list decodes a JSON array of rule values.
func (f field) list(raw json.RawMessage, now time.Time) ([]any, error) {
	if isNull(raw) {
		return nil, invalidValue(raw)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalidValue(raw)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := f.scalar(item, now)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type relativeDate struct {
	DaysAgo *int `json:"daysAgo"`
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// parseDate accepts an absolute date string or {"daysAgo": n}, which is
// resolved against now so stored rules keep a moving window.
func parseDate(raw json.RawMessage, now time.Time) (time.Time, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var rel relativeDate
		if err := json.Unmarshal(trimmed, &rel); err != nil || rel.DaysAgo == nil || *rel.DaysAgo < 0 {
			return time.Time{}, invalidValue(raw)
		}
		return now.UTC().AddDate(0, 0, -*rel.DaysAgo), nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return time.Time{}, invalidValue(raw)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalidValue(raw)
}

func invalidValue(raw json.RawMessage) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRuleValue, string(raw))
}
