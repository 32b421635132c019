package format

import (
	"errors"
	"fmt"
	"strings"
)

// Template is a closed substitution template: literal text plus ${path}
// references resolved against a fixed accessor set. "$${" is a literal "${".
// Templates are data; nothing in them is ever executed.
type Template struct {
	src   string
	parts []part
}

type part struct {
	lit  string
	path []string // nil for literals
}

// Resolver returns the value for a parsed path. The first element is a root
// accepted by ParseTemplate.
type Resolver func(path []string) (string, error)

// Template roots. "fields" takes a dotted path into the issue's fields.
var templateRoots = map[string]bool{
	"key":         true,
	"summary":     true,
	"description": true,
	"status":      true,
	"priority":    true,
	"assignee":    true,
	"reporter":    true,
	"created":     true,
	"updated":     true,
	"url":         true,
	"fields":      true,
}

// TemplateRoots lists the accepted root accessors.
func TemplateRoots() []string {
	return []string{"key", "summary", "description", "status", "priority", "assignee", "reporter", "created", "updated", "url", "fields.<path>"}
}

// ParseTemplate compiles src.
func ParseTemplate(src string) (*Template, error) {
	t := &Template{src: src}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "$${"):
			lit.WriteString("${")
			i += 3
		case strings.HasPrefix(src[i:], "${"):
			end := strings.IndexByte(src[i+2:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated ${ at offset %d", i)
			}
			path, err := parsePath(src[i+2 : i+2+end])
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", i, err)
			}
			flush()
			t.parts = append(t.parts, part{path: path})
			i += end + 3
		default:
			lit.WriteByte(src[i])
			i++
		}
	}
	flush()
	return t, nil
}

func parsePath(s string) ([]string, error) {
	if s == "" {
		return nil, errors.New("empty ${} reference")
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return nil, fmt.Errorf("invalid character %q in ${%s}", r, s)
		}
	}
	path := strings.Split(s, ".")
	for _, p := range path {
		if p == "" {
			return nil, fmt.Errorf("empty segment in ${%s}", s)
		}
	}
	if !templateRoots[path[0]] {
		return nil, fmt.Errorf("unknown reference ${%s}", s)
	}
	if path[0] == "fields" && len(path) < 2 {
		return nil, errors.New("${fields} needs a field key, e.g. ${fields.customfield_10010}")
	}
	if path[0] != "fields" && len(path) > 1 {
		return nil, fmt.Errorf("${%s}: %s has no sub-fields", s, path[0])
	}
	return path, nil
}

// Source returns the original template text.
func (t *Template) Source() string { return t.src }

// Render evaluates the template with resolve.
func (t *Template) Render(resolve Resolver) (string, error) {
	var b strings.Builder
	for _, p := range t.parts {
		if p.path == nil {
			b.WriteString(p.lit)
			continue
		}
		v, err := resolve(p.path)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
