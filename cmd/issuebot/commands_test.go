package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "issuebot/internal/transport"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestExtractArgsAndStdin(t *testing.T) {
	out, _, err := execute(t, "", "extract", "ABC-1", "and", "ABC-1", "XY-22")
	require.NoError(t, err)
	assert.Equal(t, "ABC-1\nXY-22\n", out)

	out, _, err = execute(t, "first ABC-1\nsecond DEF-2 ABC-1\n", "extract")
	require.NoError(t, err)
	assert.Equal(t, "ABC-1\nDEF-2\nABC-1\n", out)

	out, _, err = execute(t, "", "extract", "--pattern", `#([0-9]+)`, "fixes #12 and #7")
	require.NoError(t, err)
	assert.Equal(t, "12\n7\n", out)

	_, _, err = execute(t, "", "extract", "--pattern", "([", "x")
	assert.Error(t, err)
}

const validConfig = `
chat:
  platform: slack
  slack:
    bot_token: xoxb-1
    app_token: xapp-1
tracker:
  host: jira.example.com
formats:
  short:
    description: false
    title: "${key}: ${summary"
    fields: [Status, Nope]
profiles:
  default: short
`

func TestCheckConfig(t *testing.T) {
	path := writeConfig(t, validConfig)
	out, errOut, err := execute(t, "", "check-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (1 formats, platform slack)")
	assert.Contains(t, errOut, `warning: profile "short": title template`)
	assert.Contains(t, errOut, `unknown field "Nope"`)

	bad := writeConfig(t, "chat:\n  platform: irc\n")
	_, _, err = execute(t, "", "check-config", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.platform")
}

func TestRenderFetchesAndComposes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/issue/ABC-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":"ABC-1","self":"x","fields":{"summary":"Fix login","status":{"name":"Open"}}}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	path := writeConfig(t, `
chat:
  platform: slack
  slack: {bot_token: xoxb-1, app_token: xapp-1}
tracker:
  protocol: http
  host: "`+host+`"
  port: `+strconv.Itoa(port)+`
formats:
  plain:
    description: false
    fields: [Status]
profiles:
  default: plain
`)

	out, _, err := execute(t, "", "render", "--config", path, "ABC-1")
	require.NoError(t, err)

	var att kit.Attachment
	require.NoError(t, json.Unmarshal([]byte(out), &att))
	assert.Equal(t, "Fix login", att.Title)
	assert.Equal(t, srv.URL+"/browse/ABC-1", att.TitleLink)
	require.Len(t, att.Fields, 1)
	assert.Equal(t, "Open", att.Fields[0].Value)

	_, _, err = execute(t, "", "render", "--config", path, "--profile", "missing", "ABC-1")
	assert.Error(t, err)
	_, _, err = execute(t, "", "render", "--config", path, "ABC-404")
	assert.Error(t, err)
}
