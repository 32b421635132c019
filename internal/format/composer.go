package format

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"issuebot/internal/buildinfo"
	"issuebot/internal/tracker"
	"issuebot/internal/transport"
)

// NoDescription is shown when a profile wants a description the issue lacks.
const NoDescription = "Ticket does not contain a description"

// DefaultProfileName names the built-in fallback profile.
const DefaultProfileName = "default"

// Profile is a named bundle of rendering options.
type Profile struct {
	Name            string
	Description     bool
	Pretext         string // template; empty means none
	Title           string // template; empty means the issue summary
	HideFooter      bool
	RespondInThread bool
	Fields          []string
}

// DefaultProfile is used when a configured profile name does not exist:
// title, link, description and footer.
func DefaultProfile() Profile {
	return Profile{Name: DefaultProfileName, Description: true}
}

// CompiledProfile is a Profile with parsed templates. Err holds the first
// template compile error; such a profile still composes, with default
// title and no pretext.
type CompiledProfile struct {
	Profile
	pretext *Template
	title   *Template
	Err     *TemplateError
}

// Compile parses p's templates.
func Compile(p Profile) *CompiledProfile {
	cp := &CompiledProfile{Profile: p}
	var err error
	if p.Pretext != "" {
		if cp.pretext, err = ParseTemplate(p.Pretext); err != nil {
			cp.Err = &TemplateError{Profile: p.Name, Part: "pretext", Err: err}
			return cp
		}
	}
	if p.Title != "" {
		if cp.title, err = ParseTemplate(p.Title); err != nil {
			cp.Err = &TemplateError{Profile: p.Name, Part: "title", Err: err}
		}
	}
	return cp
}

// CompileAll compiles every profile and guarantees a "default" entry.
func CompileAll(profiles map[string]Profile) map[string]*CompiledProfile {
	out := make(map[string]*CompiledProfile, len(profiles)+1)
	for name, p := range profiles {
		p.Name = name
		out[name] = Compile(p)
	}
	if _, ok := out[DefaultProfileName]; !ok {
		out[DefaultProfileName] = Compile(DefaultProfile())
	}
	return out
}

// TemplateError reports a pretext or title template that failed to parse or
// render. It only affects the notification being composed.
type TemplateError struct {
	Profile string
	Part    string // "pretext" or "title"
	Err     error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("profile %q: %s template: %v", e.Profile, e.Part, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

type ComposerConfig struct {
	Tracker  tracker.Endpoint
	Build    buildinfo.Info
	Registry *Registry
}

// Composer builds attachments. It holds no per-call state and is safe for
// concurrent use.
type Composer struct {
	endpoint tracker.Endpoint
	footer   string
	reg      *Registry
}

func NewComposer(cfg ComposerConfig) *Composer {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(RegistryConfig{})
	}
	return &Composer{
		endpoint: cfg.Tracker,
		footer:   cfg.Build.Footer(),
		reg:      cfg.Registry,
	}
}

// Registry returns the field registry used by the composer.
func (c *Composer) Registry() *Registry { return c.reg }

// Compose renders issue with profile. A template failure yields a usable
// attachment with defaults plus a *TemplateError.
func (c *Composer) Compose(issue *tracker.Issue, profile *CompiledProfile) (transport.Attachment, error) {
	if issue == nil {
		return transport.Attachment{}, errors.New("compose: nil issue")
	}
	if profile == nil {
		profile = Compile(DefaultProfile())
	}

	summary := issue.Summary()
	link := c.endpoint.BrowseURL(issue.Key)
	att := transport.Attachment{
		Fallback:  summary,
		Title:     summary,
		TitleLink: link,
		InThread:  profile.RespondInThread,
	}

	if profile.Description {
		if d := issue.Description(); d != "" {
			att.Text = ConvertMarkup(d)
		} else {
			att.Text = NoDescription
		}
		att.MarkdownIn = append(att.MarkdownIn, "text")
	}

	tmplErr := profile.Err
	if tmplErr == nil {
		var pretext, title string
		tmplErr = c.renderTemplates(issue, link, profile, &pretext, &title)
		if tmplErr == nil {
			att.Pretext = pretext
			if title != "" {
				att.Title = title
			}
		}
	}
	if att.Pretext != "" {
		att.MarkdownIn = append(att.MarkdownIn, "pretext")
	}

	if !profile.HideFooter {
		att.Footer = c.footer
	}

	for _, name := range profile.Fields {
		if f, ok := c.reg.Resolve(name, issue); ok {
			att.Fields = append(att.Fields, f)
		}
	}

	if tmplErr != nil {
		return att, tmplErr
	}
	return att, nil
}

func (c *Composer) renderTemplates(issue *tracker.Issue, link string, p *CompiledProfile, pretext, title *string) *TemplateError {
	resolve := c.resolver(issue, link)
	var err error
	if p.pretext != nil {
		if *pretext, err = p.pretext.Render(resolve); err != nil {
			return &TemplateError{Profile: p.Name, Part: "pretext", Err: err}
		}
	}
	if p.title != nil {
		if *title, err = p.title.Render(resolve); err != nil {
			return &TemplateError{Profile: p.Name, Part: "title", Err: err}
		}
	}
	return nil
}

const templateTimeLayout = "2006-01-02 15:04"

// resolver binds the template accessor set to issue.
func (c *Composer) resolver(issue *tracker.Issue, link string) Resolver {
	stamp := func(t time.Time, ok bool) string {
		if !ok {
			return ""
		}
		return t.Format(templateTimeLayout)
	}
	return func(path []string) (string, error) {
		switch path[0] {
		case "key":
			return issue.Key, nil
		case "summary":
			return issue.Summary(), nil
		case "description":
			return issue.Description(), nil
		case "status":
			return issue.Status(), nil
		case "priority":
			return issue.Priority(), nil
		case "assignee":
			return c.reg.Person(issue.Assignee()), nil
		case "reporter":
			return c.reg.Person(issue.Reporter()), nil
		case "created":
			return stamp(issue.Created()), nil
		case "updated":
			return stamp(issue.Updated()), nil
		case "url":
			return link, nil
		case "fields":
			v, _ := issue.Lookup(strings.Join(path[1:], "."))
			return RenderValue(v), nil
		}
		return "", fmt.Errorf("unknown reference %q", path[0])
	}
}
