package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

// RawRecord is a record as handed over by a source client, keyed by the source's native field names
type RawRecord map[string]any

// String returns the value of key as a trimmed string. Numbers are formatted, other types yield "".
func (r RawRecord) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case int, int64, float64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Time returns the value of key as a timestamp. RFC3339 strings, time.Time and unix seconds are accepted.
func (r RawRecord) Time(key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		t := v.UTC()
		return &t
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		t := v.UTC()
		return &t
	case string:
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.RFC1123Z, time.RFC1123} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				t := parsed.UTC()
				return &t
			}
		}
	case float64:
		if v > 0 {
			t := time.Unix(int64(v), 0).UTC()
			return &t
		}
	case int64:
		if v > 0 {
			t := time.Unix(v, 0).UTC()
			return &t
		}
	}
	return nil
}

// Document is the canonical unit of content from any source
type Document struct {
	ID          types.DocumentID
	Kind        types.SourceKind
	Title       string
	Body        string
	Author      string
	PublishedAt *time.Time // nil when the source does not report it
	URL         string
	Metadata    map[string]any
}

// Text returns title and body joined the way they are embedded and scored
func (d *Document) Text() string {
	if d.Title == "" {
		return d.Body
	}
	return d.Title + "\n" + d.Body
}
