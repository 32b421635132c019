package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issueJSON = `{
  "key": "PROJ-123",
  "self": "https://jira.example.com/rest/api/2/issue/10001",
  "fields": {
    "summary": "Login button is misaligned",
    "description": "h1. Steps\n* open the page",
    "status": {"name": "In Progress"},
    "priority": {"name": "High"},
    "assignee": null,
    "reporter": {"name": "jdoe", "displayName": "Jane Doe"},
    "created": "2024-03-01T10:00:00.000+0000",
    "customfield_1": {"nested": {"value": 7}}
  }
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	c, err := NewClient(Config{
		Endpoint:   Endpoint{Protocol: "http", Host: u.Hostname(), Port: port, BasePath: "/jira/"},
		User:       "bot",
		Password:   "secret",
		StrictSSL:  true,
		RatePerSec: 100,
	})
	require.NoError(t, err)
	return c
}

func TestFindIssue(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jira/rest/api/2/issue/PROJ-123", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(issueJSON))
	})

	issue, err := c.FindIssue(context.Background(), "PROJ-123")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-123", issue.Key)
	assert.Equal(t, "Login button is misaligned", issue.Summary())
	assert.Equal(t, "In Progress", issue.Status())
	assert.Equal(t, "High", issue.Priority())
	assert.Nil(t, issue.Assignee())
	assert.Equal(t, "Jane Doe", issue.Reporter().DisplayName)

	created, ok := issue.Created()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), created.UTC())
	_, ok = issue.Updated()
	assert.False(t, ok)

	v, ok := issue.Lookup("customfield_1.nested.value")
	require.True(t, ok)
	assert.EqualValues(t, 7, v)
	_, ok = issue.Lookup("customfield_1.missing")
	assert.False(t, ok)
}

func TestFindIssueErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{status: http.StatusNotFound, body: `{"errorMessages":["Issue Does Not Exist"]}`, want: ErrNotFound},
		{status: http.StatusUnauthorized, want: ErrUnauthorized},
		{status: http.StatusForbidden, want: ErrUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.FindIssue(context.Background(), "PROJ-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFindIssueServerErrorMessage(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"errorMessages":["upstream down"]}`))
	})
	_, err := c.FindIssue(context.Background(), "PROJ-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestEndpointBrowseURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ep   Endpoint
		want string
	}{
		{Endpoint{Host: "jira.example.com"}, "https://jira.example.com/browse/A-1"},
		{Endpoint{Protocol: "https", Host: "jira.example.com", Port: 443}, "https://jira.example.com/browse/A-1"},
		{Endpoint{Protocol: "http", Host: "jira", Port: 8080, BasePath: "/tracker/"}, "http://jira:8080/tracker/browse/A-1"},
		{Endpoint{Protocol: "http", Host: "jira", Port: 80, BasePath: "a/b"}, "http://jira/a/b/browse/A-1"},
	}
	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.want, tt.ep.BrowseURL("A-1"))
	}
}
