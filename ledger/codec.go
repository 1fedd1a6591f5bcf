package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decoder reads stored field values leniently. Values left behind by older
// schemas never fail a request: each bad value decodes to a safe default and
// an issue is recorded for the caller to log.
type Decoder struct {
	Issues []string
}

// Note records an issue found by a caller decoding a composite value.
func (d *Decoder) Note(field, raw string, err error) {
	d.Issues = append(d.Issues, fmt.Sprintf("%s=%q: %v", field, truncate(raw, 64), err))
}

// Int decodes a non-negative integer; blank means 0.
func (d *Decoder) Int(field, raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// number_integer metafields sometimes arrive as "5.0"
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			d.Note(field, raw, err)
			return 0
		}
		n = int(f)
	}
	if n < 0 {
		d.Note(field, raw, fmt.Errorf("negative value"))
		return 0
	}
	return n
}

// OptionalInt decodes an integer that may be absent.
func (d *Decoder) OptionalInt(field, raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		if err == nil {
			err = fmt.Errorf("negative value")
		}
		d.Note(field, raw, err)
		return nil
	}
	return &n
}

// Date decodes a YYYY-MM-DD value; blank or invalid means absent.
func (d *Decoder) Date(field, raw string) Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}
	}
	// date metafields written by other tools may carry a time component
	if len(raw) > len(dateLayout) && raw[len(dateLayout)] == 'T' {
		raw = raw[:len(dateLayout)]
	}
	v, err := ParseDate(raw)
	if err != nil {
		d.Note(field, raw, err)
		return Date{}
	}
	return v
}

// Dates decodes a JSON array of dates, dropping invalid and duplicate entries
// and bounding the result to limit.
func (d *Decoder) Dates(field, raw string, limit int) []Date {
	var items []string
	if !d.jsonArray(field, raw, &items) {
		return nil
	}
	out := make([]Date, 0, len(items))
	for _, s := range items {
		v, err := ParseDate(s)
		if err != nil {
			d.Note(field, s, err)
			continue
		}
		if !Contains(out, v) {
			out = append(out, v)
		}
	}
	return bound(out, limit)
}

// Strings decodes a JSON array of strings (numbers are accepted and
// stringified), dropping blanks and duplicates and bounding to limit.
func (d *Decoder) Strings(field, raw string, limit int) []string {
	var items []any
	if !d.jsonArray(field, raw, &items) {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch v := it.(type) {
		case string:
			s = strings.TrimSpace(v)
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			d.Note(field, fmt.Sprint(it), fmt.Errorf("unexpected element type %T", it))
			continue
		}
		if s != "" && !Contains(out, s) {
			out = append(out, s)
		}
	}
	return bound(out, limit)
}

// Audit decodes a JSON array of audit entries bounded to limit.
func (d *Decoder) Audit(field, raw string, limit int) []AuditEntry {
	var items []AuditEntry
	if !d.jsonArray(field, raw, &items) {
		return nil
	}
	return bound(items, limit)
}

func (d *Decoder) jsonArray(field, raw string, into any) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		d.Note(field, raw, err)
		return false
	}
	return true
}

// EncodeJSON renders v as compact JSON; nil slices render as [].
func EncodeJSON[T any](items []T) string {
	if items == nil {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func bound[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
