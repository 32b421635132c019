package format

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/buildinfo"
	"issuebot/internal/tracker"
	"issuebot/internal/transport"
)

var testNow = time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

func testIssue() *tracker.Issue {
	return &tracker.Issue{
		Key: "PROJ-123",
		Fields: map[string]any{
			"summary":     "Login button is misaligned",
			"description": "h2. Steps\n* open {{/login}}\n* see -nothing- happen",
			"status":      map[string]any{"name": "In Progress"},
			"priority":    map[string]any{"name": "High"},
			"reporter":    map[string]any{"name": "jdoe", "displayName": "Jane Doe"},
			"assignee":    nil,
			"created":     "2024-03-01T10:00:00.000+0000",
			"customfield_10010": []any{
				"com.atlassian.greenhopper.service.sprint.Sprint@1[id=7,state=CLOSED,name=Sprint 7,goal=]",
				"com.atlassian.greenhopper.service.sprint.Sprint@2[id=8,state=ACTIVE,name=Sprint 8,goal=]",
			},
			"customfield_20000": map[string]any{"value": "Web"},
			"customfield_30000": nil,
		},
	}
}

func testComposer() *Composer {
	return NewComposer(ComposerConfig{
		Tracker: tracker.Endpoint{Protocol: "https", Host: "jira.example.com", BasePath: "/jira/"},
		Build:   buildinfo.Info{Name: "issuebot", Version: "1.2.3", Homepage: "https://example.org/issuebot"},
		Registry: NewRegistry(RegistryConfig{
			UserMap:      map[string]string{"jdoe": "jane"},
			SprintField:  "customfield_10010",
			CustomFields: map[string]string{"Component": "customfield_20000", "Team": "customfield_30000"},
			Now:          func() time.Time { return testNow },
		}),
	})
}

func TestComposeDefaults(t *testing.T) {
	t.Parallel()
	att, err := testComposer().Compose(testIssue(), Compile(Profile{Name: "p", Description: true}))
	require.NoError(t, err)

	assert.Equal(t, "Login button is misaligned", att.Fallback)
	assert.Equal(t, "Login button is misaligned", att.Title)
	assert.Equal(t, "https://jira.example.com/jira/browse/PROJ-123", att.TitleLink)
	assert.Equal(t, "*Steps*\n• open `/login`\n• see ~nothing~ happen", att.Text)
	assert.Equal(t, []string{"text"}, att.MarkdownIn)
	assert.Equal(t, "issuebot v1.2.3 - https://example.org/issuebot", att.Footer)
	assert.Empty(t, att.Fields)
	assert.False(t, att.InThread)
}

func TestComposeWithoutDescription(t *testing.T) {
	t.Parallel()
	att, err := testComposer().Compose(testIssue(), Compile(Profile{Name: "p", HideFooter: true, RespondInThread: true}))
	require.NoError(t, err)
	assert.Empty(t, att.Text)
	assert.Empty(t, att.Footer)
	assert.True(t, att.InThread)
}

func TestComposeDescriptionPlaceholder(t *testing.T) {
	t.Parallel()
	issue := testIssue()
	delete(issue.Fields, "description")
	att, err := testComposer().Compose(issue, Compile(Profile{Name: "p", Description: true}))
	require.NoError(t, err)
	assert.Equal(t, NoDescription, att.Text)
}

func TestComposeFieldsInDeclaredOrder(t *testing.T) {
	t.Parallel()
	p := Compile(Profile{Name: "p", Fields: []string{
		"Sprint", "Assignee", "Nope", "Team", "Reporter", "Component", "Created", "Updated", "Status", "Priority",
	}})
	att, err := testComposer().Compose(testIssue(), p)
	require.NoError(t, err)

	want := []transport.AttachmentField{
		{Title: "Sprint", Value: "Sprint 8", Short: true},
		{Title: "Assignee", Value: "Unassigned", Short: true},
		{Title: "Reporter", Value: "@jane", Short: true},
		{Title: "Component", Value: "Web", Short: true},
		{Title: "Created", Value: "3 hours ago", Short: true},
		{Title: "Status", Value: "In Progress", Short: true},
		{Title: "Priority", Value: "High", Short: true},
	}
	assert.Equal(t, want, att.Fields)
}

func TestComposeEmptyFieldList(t *testing.T) {
	t.Parallel()
	att, err := testComposer().Compose(testIssue(), Compile(Profile{Name: "p", Fields: []string{}}))
	require.NoError(t, err)
	assert.Empty(t, att.Fields)
}

func TestComposeTemplates(t *testing.T) {
	t.Parallel()
	p := Compile(Profile{
		Name:    "p",
		Pretext: "${reporter} mentioned ${key} ($${literal})",
		Title:   "[${status}] ${key}: ${summary} / ${fields.customfield_20000.value}",
	})
	require.Nil(t, p.Err)
	att, err := testComposer().Compose(testIssue(), p)
	require.NoError(t, err)
	assert.Equal(t, "@jane mentioned PROJ-123 (${literal})", att.Pretext)
	assert.Equal(t, "[In Progress] PROJ-123: Login button is misaligned / Web", att.Title)
	assert.Equal(t, "Login button is misaligned", att.Fallback)
	assert.Contains(t, att.MarkdownIn, "pretext")
}

func TestMalformedTemplateIsIsolated(t *testing.T) {
	t.Parallel()
	profiles := CompileAll(map[string]Profile{
		"broken": {Title: "${summary", Fields: []string{"Status"}},
		"good":   {Title: "${key}", Fields: []string{"Status"}},
	})
	c := testComposer()

	att, err := c.Compose(testIssue(), profiles["broken"])
	var te *TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "broken", te.Profile)
	assert.Equal(t, "title", te.Part)
	assert.Equal(t, "Login button is misaligned", att.Title, "falls back to summary")
	assert.Len(t, att.Fields, 1)

	att, err = c.Compose(testIssue(), profiles["good"])
	require.NoError(t, err)
	assert.Equal(t, "PROJ-123", att.Title)

	require.Contains(t, profiles, DefaultProfileName)
	assert.True(t, profiles[DefaultProfileName].Description)
}

func TestParseTemplateErrors(t *testing.T) {
	t.Parallel()
	for _, src := range []string{
		"${summary",
		"${}",
		"${unknown}",
		"${fields}",
		"${summary.x}",
		"${fields..x}",
		"${key + 1}",
		"${process.env}",
	} {
		_, err := ParseTemplate(src)
		assert.Error(t, err, src)
	}
	tmpl, err := ParseTemplate("plain $ text $${x} ${key}")
	require.NoError(t, err)
	out, err := tmpl.Render(func([]string) (string, error) { return "K", nil })
	require.NoError(t, err)
	assert.Equal(t, "plain $ text ${x} K", out)
}

func TestSprintName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"last wins", []any{"x,name=Sprint 7,y", "x,name=Sprint 8,y"}, "Sprint 8"},
		{"single string", "[id=1,name=Alpha]", "Alpha"},
		{"object", []any{map[string]any{"id": 3.0, "name": "Cloud 3"}}, "Cloud 3"},
		{"no match", []any{"garbage"}, "Not Assigned"},
		{"empty list", []any{}, "Not Assigned"},
		{"nil", nil, "Not Assigned"},
	}
	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.want, SprintName(tt.in), tt.name)
	}
}

func TestSprintOmittedWithoutField(t *testing.T) {
	t.Parallel()
	r := NewRegistry(RegistryConfig{})
	_, ok := r.Resolve("Sprint", testIssue())
	assert.False(t, ok)
	assert.False(t, r.Known("Sprint"))
}

func TestAssignee(t *testing.T) {
	t.Parallel()
	r := NewRegistry(RegistryConfig{UserMap: map[string]string{"bob": "@bobby"}})
	issue := testIssue()

	f, ok := r.Resolve("Assignee", issue)
	require.True(t, ok)
	assert.Equal(t, "Unassigned", f.Value)

	issue.Fields["assignee"] = map[string]any{"name": "alice", "displayName": "Alice A"}
	f, _ = r.Resolve("Assignee", issue)
	assert.Equal(t, "Alice A", f.Value)

	issue.Fields["assignee"] = map[string]any{"name": "bob", "displayName": "Bob B"}
	f, _ = r.Resolve("Assignee", issue)
	assert.Equal(t, "@bobby", f.Value)
}

func TestRenderValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "3.5", RenderValue(3.5))
	assert.Equal(t, "true", RenderValue(true))
	assert.Equal(t, "a, b", RenderValue([]any{map[string]any{"name": "a"}, "b", nil}))
	assert.Equal(t, "", RenderValue(nil))
}

func TestConvertMarkup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, in, want string
	}{
		{"heading", "h1. Title", "*Title*"},
		{"bold italic", "*bold* and _it_", "*bold* and _it_"},
		{"strike", "this is -gone- now", "this is ~gone~ now"},
		{"hyphenated words untouched", "PROJ-1 and 2024-01-02", "PROJ-1 and 2024-01-02"},
		{"mono", "run {{make test}}", "run `make test`"},
		{"link", "see [the docs|https://example.org/a_b_c]", "see [the docs](https://example.org/a_b_c)"},
		{"bare link", "[https://example.org]", "[https://example.org](https://example.org)"},
		{"bullets", "* one\n** two\n- three", "• one\n  • two\n• three"},
		{"numbered", "# a\n# b\n## c\n# d", "1. a\n2. b\n  1. c\n3. d"},
		{"bq", "bq. quoted", "> quoted"},
		{"quote block", "{quote}\nl1\nl2\n{quote}", "> l1\n> l2"},
		{"code", "{code:go}\nx := -a-\n{code}", "```\nx := -a-\n```"},
		{"noformat", "{noformat}*raw*{noformat}", "```\n*raw*\n```"},
		{"line break", `a\\b`, "a\nb"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ConvertMarkup(tt.in))
		})
	}
}
