package domain

import (
	"time"
)

// Severity levels produced by the enrichment step.
const (
	SeverityCritical  = "critical"
	SeverityHigh      = "high"
	SeverityImportant = "important"
	SeverityNormal    = "normal"
)

// RawItem is an opaque view over a single Graph API record. Fields beyond the
// identity and timestamp accessors are passed through to enrichment untouched.
type RawItem map[string]any

// ID returns the feed-scoped identifier of the record.
func (r RawItem) ID() string {
	return r.String("id")
}

// Title returns the announcement title, empty if absent.
func (r RawItem) Title() string {
	return r.String("title")
}

// String reads a field as a string, returning "" for absent or non-string values.
func (r RawItem) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Timestamp resolves the record's modification time: lastModifiedDateTime
// preferred, startDateTime as fallback. Returns the zero time when neither is
// present or parsable, so callers can sort unknown items as oldest.
func (r RawItem) Timestamp() time.Time {
	for _, key := range []string{"lastModifiedDateTime", "startDateTime"} {
		if ts, err := ParseGraphTime(r.String(key)); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// ReportDate resolves the date handed to the enrichment collaborators for
// countdown computation. Falls back to now when the record carries no usable
// timestamp; never fails.
func (r RawItem) ReportDate(now time.Time) time.Time {
	if ts := r.Timestamp(); !ts.IsZero() {
		return ts
	}
	return now
}

// ParseGraphTime parses the ISO-8601 timestamps used by the Graph API.
// Z-suffixed UTC and numeric offsets are both accepted.
func ParseGraphTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}

// EnrichedItem carries the structured analysis produced by an enrichment
// collaborator plus the feed-identity fields re-attached afterwards. It is
// rendered into a card and discarded; only its dedup key outlives it.
type EnrichedItem map[string]any

// SetDefault assigns value under key only when the key is absent or empty.
// Defaulting never overwrites what the enrichment step produced.
func (e EnrichedItem) SetDefault(key string, value any) {
	if value == nil {
		return
	}
	if existing, ok := e[key]; ok && !isEmpty(existing) {
		return
	}
	if s, ok := value.(string); ok && s == "" {
		return
	}
	e[key] = value
}

// String reads a field as a string, returning "" for absent or non-string values.
func (e EnrichedItem) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// Strings reads a field that may be a string or a list of strings.
func (e EnrichedItem) Strings(key string) []string {
	switch v := e[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Bool reads a boolean field, treating absence as false.
func (e EnrichedItem) Bool(key string) bool {
	v, _ := e[key].(bool)
	return v
}

func isEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case []string:
		return len(value) == 0
	default:
		return false
	}
}
