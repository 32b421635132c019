package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	kit "issuebot/internal/transport"
)

const telegramTextLimit = 4000

var (
	fenceRe  = regexp.MustCompile("(?s)```\\n?(.*?)\\n?```")
	monoRe   = regexp.MustCompile("`([^`\\n]+)`")
	mdLinkRe = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	boldRe   = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicRe = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+)_($|[^\p{L}\p{N}_])`)
	strikeRe = regexp.MustCompile(`~([^~\n]+)~`)
)

// markdownToHTML turns chat markdown into Telegram's HTML parse mode.
// Everything outside recognised markup is escaped.
func markdownToHTML(s string) string {
	var held []string
	hold := func(v string) string {
		held = append(held, v)
		return fmt.Sprintf("\x00%d\x00", len(held)-1)
	}

	s = fenceRe.ReplaceAllStringFunc(s, func(m string) string {
		body := fenceRe.FindStringSubmatch(m)[1]
		return hold("<pre>" + html.EscapeString(body) + "</pre>")
	})
	s = monoRe.ReplaceAllStringFunc(s, func(m string) string {
		return hold("<code>" + html.EscapeString(monoRe.FindStringSubmatch(m)[1]) + "</code>")
	})
	s = mdLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		sm := mdLinkRe.FindStringSubmatch(m)
		return hold(`<a href="` + html.EscapeString(sm[2]) + `">` + html.EscapeString(sm[1]) + "</a>")
	})

	s = html.EscapeString(s)
	s = boldRe.ReplaceAllString(s, "<b>$1</b>")
	s = italicRe.ReplaceAllString(s, "$1<i>$2</i>$3")
	s = strikeRe.ReplaceAllString(s, "<s>$1</s>")

	for i := len(held) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, fmt.Sprintf("\x00%d\x00", i), held[i])
	}
	return s
}

// renderAttachment lays an attachment out as one HTML message:
// pretext, linked bold title, body, "Title: value" field lines, italic footer.
func renderAttachment(att kit.Attachment) string {
	md := func(part, v string) string {
		for _, m := range att.MarkdownIn {
			if m == part {
				return markdownToHTML(v)
			}
		}
		return html.EscapeString(v)
	}

	var b strings.Builder
	if att.Pretext != "" {
		b.WriteString(md("pretext", att.Pretext))
		b.WriteString("\n\n")
	}
	title := html.EscapeString(att.Title)
	if att.TitleLink != "" {
		title = `<a href="` + html.EscapeString(att.TitleLink) + `">` + title + "</a>"
	}
	b.WriteString("<b>" + title + "</b>")
	if att.Text != "" {
		b.WriteString("\n")
		b.WriteString(md("text", att.Text))
	}
	if len(att.Fields) > 0 {
		b.WriteString("\n")
		for _, f := range att.Fields {
			b.WriteString("\n<b>" + html.EscapeString(f.Title) + ":</b> " + html.EscapeString(f.Value))
		}
	}
	if att.Footer != "" {
		b.WriteString("\n\n<i>" + html.EscapeString(att.Footer) + "</i>")
	}
	return b.String()
}

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
