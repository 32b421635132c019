// Package tracker reads issues from a Jira-compatible issue tracker.
package tracker

import (
	"strings"
	"time"
)

// Issue is a fetched tracker issue. Fields is the tracker's "fields" object
// decoded generically; its shape is owned by the tracker.
type Issue struct {
	Key    string         `json:"key"`
	Self   string         `json:"self,omitempty"`
	Fields map[string]any `json:"fields"`
}

// User is a tracker account as embedded in issue fields.
type User struct {
	Name        string `json:"name,omitempty"`
	Key         string `json:"key,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Identities returns the non-empty user identifiers, most specific first.
func (u *User) Identities() []string {
	if u == nil {
		return nil
	}
	out := make([]string, 0, 3)
	for _, s := range []string{u.Name, u.Key, u.AccountID} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Field returns a raw field value. Null values count as absent.
func (i *Issue) Field(key string) (any, bool) {
	if i == nil || i.Fields == nil {
		return nil, false
	}
	v, ok := i.Fields[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Lookup walks a dotted path through nested objects, starting at Fields.
func (i *Issue) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	v, ok := i.Field(parts[0])
	for _, p := range parts[1:] {
		if !ok {
			return nil, false
		}
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, ok = m[p]
		ok = ok && v != nil
	}
	return v, ok
}

func (i *Issue) Summary() string     { return i.stringField("summary") }
func (i *Issue) Description() string { return i.stringField("description") }
func (i *Issue) Status() string      { return i.nameOf("status") }
func (i *Issue) Priority() string    { return i.nameOf("priority") }
func (i *Issue) Reporter() *User     { return i.user("reporter") }
func (i *Issue) Assignee() *User     { return i.user("assignee") }

func (i *Issue) Created() (time.Time, bool) { return i.timeField("created") }
func (i *Issue) Updated() (time.Time, bool) { return i.timeField("updated") }

func (i *Issue) stringField(key string) string {
	v, _ := i.Field(key)
	s, _ := v.(string)
	return s
}

func (i *Issue) nameOf(key string) string {
	v, _ := i.Field(key)
	m, _ := v.(map[string]any)
	s, _ := m["name"].(string)
	return s
}

func (i *Issue) user(key string) *User {
	v, ok := i.Field(key)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	str := func(k string) string { s, _ := m[k].(string); return s }
	return &User{
		Name:        str("name"),
		Key:         str("key"),
		AccountID:   str("accountId"),
		DisplayName: str("displayName"),
	}
}

func (i *Issue) timeField(key string) (time.Time, bool) {
	t, err := ParseTime(i.stringField(key))
	return t, err == nil
}

// Jira timestamps use a numeric zone without a colon.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

// ParseTime parses a tracker timestamp.
func ParseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
