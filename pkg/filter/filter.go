package filter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fleetconf/shepherd/pkg/types"
)

// ErrInvalidCursor is returned when a paging cursor cannot be decoded or
// was issued for a different filter.
var ErrInvalidCursor = errors.New("invalid cursor")

// ValidationError reports a malformed filter parameter.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ComponentFilter selects components. All set criteria must match (AND);
// within the Status list any value matches (OR). Status is evaluated
// against the freshly aggregated status, not the stored one.
type ComponentFilter struct {
	IDs     []string                `json:"ids,omitempty"`
	Status  []types.ComponentStatus `json:"status,omitempty"`
	Enabled *bool                   `json:"enabled,omitempty"`
	Config  string                  `json:"config_name,omitempty"`
	Tags    map[string]string       `json:"tags,omitempty"`
}

// Match reports whether the component satisfies every criterion.
func (f *ComponentFilter) Match(c *types.Component) bool {
	if f == nil {
		return true
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == c.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Status) > 0 {
		found := false
		for _, st := range f.Status {
			if st == c.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Enabled != nil && *f.Enabled != c.Enabled {
		return false
	}
	if f.Config != "" && f.Config != c.DesiredConfig {
		return false
	}
	for k, v := range f.Tags {
		if c.Tags[k] != v {
			return false
		}
	}
	return true
}

// SessionFilter selects sessions. All set criteria must match.
type SessionFilter struct {
	MinAge       time.Duration          `json:"min_age,omitempty"`
	MaxAge       time.Duration          `json:"max_age,omitempty"`
	Status       types.SessionStatus    `json:"status,omitempty"`
	Succeeded    types.SessionSucceeded `json:"succeeded,omitempty"`
	NameContains string                 `json:"name_contains,omitempty"`
	Tags         map[string]string      `json:"tags,omitempty"`
}

// Match reports whether the session satisfies every criterion. Session age
// is measured from its start time; sessions that have not started have
// age zero.
func (f *SessionFilter) Match(s *types.Session, now time.Time) bool {
	if f == nil {
		return true
	}
	var age time.Duration
	if s.Status.StartTime != nil {
		age = now.Sub(*s.Status.StartTime)
	}
	if f.MinAge > 0 && age < f.MinAge {
		return false
	}
	if f.MaxAge > 0 && age > f.MaxAge {
		return false
	}
	if f.Status != "" && f.Status != s.Status.Status {
		return false
	}
	if f.Succeeded != "" && f.Succeeded != s.Status.Succeeded {
		return false
	}
	if f.NameContains != "" && !strings.Contains(s.Name, f.NameContains) {
		return false
	}
	for k, v := range f.Tags {
		if s.Tags[k] != v {
			return false
		}
	}
	return true
}

var agePattern = regexp.MustCompile(`(\d+)([wdhm])`)

var ageUnits = map[string]time.Duration{
	"w": 7 * 24 * time.Hour,
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
}

// ParseAge converts an age expression such as "2w", "12h" or the
// compound "1w2d3h4m" into a duration. Each unit term contributes
// independently; anything left over after consuming the terms, including
// a sign or a fraction, rejects the whole expression.
func ParseAge(age string) (time.Duration, error) {
	matches := agePattern.FindAllStringSubmatch(age, -1)
	if matches == nil {
		return 0, Invalid("invalid age %q: expected <n>[wdhm] terms", age)
	}
	var consumed int
	var total time.Duration
	for _, m := range matches {
		consumed += len(m[0])
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, Invalid("invalid age %q: %v", age, err)
		}
		total += time.Duration(n) * ageUnits[m[2]]
	}
	if consumed != len(age) {
		return 0, Invalid("invalid age %q: expected <n>[wdhm] terms", age)
	}
	return total, nil
}

// ParseTags parses "key=value,key=value" tag expressions.
func ParseTags(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, Invalid("invalid tag expression %q", pair)
		}
		tags[k] = v
	}
	return tags, nil
}

// cursorPayload is the decoded form of an opaque paging cursor.
type cursorPayload struct {
	After       string `json:"after"`
	Fingerprint uint64 `json:"fp"`
}

// Fingerprint hashes the canonical encoding of a filter. A cursor is only
// valid for the filter it was issued with.
func Fingerprint(f any) uint64 {
	data, err := json.Marshal(f)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// EncodeCursor builds an opaque cursor from the last key of a page and
// the filter fingerprint.
func EncodeCursor(after string, fingerprint uint64) string {
	data, _ := json.Marshal(cursorPayload{After: after, Fingerprint: fingerprint})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor unpacks a cursor and checks it against the fingerprint of
// the filter accompanying the request.
func DecodeCursor(cursor string, fingerprint uint64) (string, error) {
	if cursor == "" {
		return "", nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if payload.Fingerprint != fingerprint {
		return "", fmt.Errorf("%w: filter does not match cursor", ErrInvalidCursor)
	}
	return payload.After, nil
}
