// Package format turns tracker issues into chat attachments.
package format

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"issuebot/internal/tracker"
	"issuebot/internal/transport"
)

const (
	unassigned        = "Unassigned"
	sprintUnassigned  = "Not Assigned"
	maxShortFieldSize = 40
)

// FieldFunc derives one attachment field from an issue. It reports false
// when the field does not apply and must be left out.
type FieldFunc func(issue *tracker.Issue) (transport.AttachmentField, bool)

type RegistryConfig struct {
	// UserMap maps tracker user names to chat usernames (without "@").
	UserMap map[string]string
	// SprintField is the tracker field holding sprint data; empty disables Sprint.
	SprintField string
	// CustomFields maps display names to tracker field keys.
	CustomFields map[string]string
	// Now anchors relative timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Registry resolves field names to values: built-ins first, then the
// operator's custom field mapping.
type Registry struct {
	builtins map[string]FieldFunc
	custom   map[string]string
	users    map[string]string
	now      func() time.Time
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Registry{
		builtins: map[string]FieldFunc{},
		custom:   cfg.CustomFields,
		users:    cfg.UserMap,
		now:      cfg.Now,
	}

	r.Register("Created", r.timeField("Created", (*tracker.Issue).Created))
	r.Register("Updated", r.timeField("Updated", (*tracker.Issue).Updated))
	r.Register("Status", textField("Status", (*tracker.Issue).Status))
	r.Register("Priority", textField("Priority", (*tracker.Issue).Priority))
	r.Register("Reporter", func(i *tracker.Issue) (transport.AttachmentField, bool) {
		u := i.Reporter()
		if u == nil {
			return transport.AttachmentField{}, false
		}
		return short("Reporter", r.Person(u)), true
	})
	r.Register("Assignee", func(i *tracker.Issue) (transport.AttachmentField, bool) {
		v := unassigned
		if u := i.Assignee(); u != nil {
			v = r.Person(u)
		}
		return short("Assignee", v), true
	})
	if f := strings.TrimSpace(cfg.SprintField); f != "" {
		r.Register("Sprint", func(i *tracker.Issue) (transport.AttachmentField, bool) {
			v, _ := i.Field(f)
			return short("Sprint", SprintName(v)), true
		})
	}
	return r
}

// Register adds or replaces a named field.
func (r *Registry) Register(name string, fn FieldFunc) { r.builtins[name] = fn }

// Known reports whether name resolves to a built-in or a custom field.
func (r *Registry) Known(name string) bool {
	if _, ok := r.builtins[name]; ok {
		return true
	}
	_, ok := r.custom[name]
	return ok
}

// Names lists the built-in field names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.builtins))
	for k := range r.builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve derives field name for issue. Unknown names and custom fields
// without a value are omitted.
func (r *Registry) Resolve(name string, issue *tracker.Issue) (transport.AttachmentField, bool) {
	if fn, ok := r.builtins[name]; ok {
		return fn(issue)
	}
	key, ok := r.custom[name]
	if !ok {
		return transport.AttachmentField{}, false
	}
	raw, ok := issue.Lookup(key)
	if !ok {
		return transport.AttachmentField{}, false
	}
	v := RenderValue(raw)
	if v == "" {
		return transport.AttachmentField{}, false
	}
	return transport.AttachmentField{Title: name, Value: v, Short: len(v) <= maxShortFieldSize}, true
}

// Person renders a tracker user: "@chatname" when mapped, else the display name.
func (r *Registry) Person(u *tracker.User) string {
	if u == nil {
		return ""
	}
	for _, id := range u.Identities() {
		if chat, ok := r.users[id]; ok && chat != "" {
			return "@" + strings.TrimPrefix(chat, "@")
		}
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

func (r *Registry) timeField(title string, get func(*tracker.Issue) (time.Time, bool)) FieldFunc {
	return func(i *tracker.Issue) (transport.AttachmentField, bool) {
		t, ok := get(i)
		if !ok {
			return transport.AttachmentField{}, false
		}
		return short(title, humanize.RelTime(t, r.now(), "ago", "from now")), true
	}
}

func textField(title string, get func(*tracker.Issue) string) FieldFunc {
	return func(i *tracker.Issue) (transport.AttachmentField, bool) {
		v := get(i)
		if v == "" {
			return transport.AttachmentField{}, false
		}
		return short(title, v), true
	}
}

func short(title, value string) transport.AttachmentField {
	return transport.AttachmentField{Title: title, Value: value, Short: true}
}

var sprintNameRe = regexp.MustCompile(`name=([^,\]]+)`)

// SprintName extracts the sprint name from a sprint field value. Lists use
// their last element. Greenhopper strings ("...,name=Sprint 8,...") and
// objects with a "name" key are understood; anything else is "Not Assigned".
func SprintName(v any) string {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return sprintUnassigned
		}
		v = list[len(list)-1]
	}
	switch x := v.(type) {
	case string:
		if m := sprintNameRe.FindStringSubmatch(x); m != nil {
			return strings.TrimSpace(m[1])
		}
	case map[string]any:
		if name, ok := x["name"].(string); ok && name != "" {
			return name
		}
	}
	return sprintUnassigned
}

// RenderValue turns an arbitrary tracker field value into display text.
func RenderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case map[string]any:
		for _, k := range []string{"value", "name", "displayName", "key"} {
			if s := RenderValue(x[k]); s != "" {
				return s
			}
		}
		return ""
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := RenderValue(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
