package slack

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/slack-go/slack"

	kit "issuebot/internal/transport"
)

var mdLinkRe = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	quoteRe     = regexp.MustCompile(`(?m)^&gt; `)
)

func escapeText(s string) string { return textEscaper.Replace(s) }

// toMrkdwn rewrites chat markdown for Slack. Emphasis, code and bullets are
// already Slack's dialect; links become <url|text> and the rest is escaped.
func toMrkdwn(s string) string {
	var held []string
	s = mdLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		sm := mdLinkRe.FindStringSubmatch(m)
		held = append(held, "<"+sm[2]+"|"+escapeText(sm[1])+">")
		return fmt.Sprintf("\x00%d\x00", len(held)-1)
	})
	s = quoteRe.ReplaceAllString(escapeText(s), "> ")
	for i := len(held) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, fmt.Sprintf("\x00%d\x00", i), held[i])
	}
	return s
}

func toSlackAttachment(att kit.Attachment) slack.Attachment {
	md := func(part, v string) string {
		for _, m := range att.MarkdownIn {
			if m == part {
				return toMrkdwn(v)
			}
		}
		return escapeText(v)
	}

	out := slack.Attachment{
		Fallback:   att.Fallback,
		Pretext:    md("pretext", att.Pretext),
		Title:      att.Title,
		TitleLink:  att.TitleLink,
		Text:       md("text", att.Text),
		Footer:     att.Footer,
		MarkdownIn: append([]string(nil), att.MarkdownIn...),
	}
	if len(att.Fields) > 0 {
		out.Fields = make([]slack.AttachmentField, 0, len(att.Fields))
		for _, f := range att.Fields {
			out.Fields = append(out.Fields, slack.AttachmentField{Title: f.Title, Value: f.Value, Short: f.Short})
		}
	}
	return out
}
