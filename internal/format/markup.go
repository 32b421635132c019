package format

import (
	"fmt"
	"regexp"
	"strings"
)

// Chat markdown is the intermediate dialect handed to transports:
// *bold* _italic_ ~strike~ `mono` ```blocks``` [text](url) "• " bullets "> " quotes.

var (
	codeBlockRe = regexp.MustCompile(`(?s)\{(code|noformat)(?::[^}]*)?\}(.*?)\{(?:code|noformat)\}`)
	quoteRe     = regexp.MustCompile(`(?s)\{quote\}(.*?)\{quote\}`)
	monoRe      = regexp.MustCompile(`\{\{(.+?)\}\}`)
	linkRe      = regexp.MustCompile(`\[([^|\]\[]+)\|([^\]\s]+)\]`)
	bareLinkRe  = regexp.MustCompile(`\[((?:https?|ftp|mailto):[^\]\s]+)\]`)
	headingRe   = regexp.MustCompile(`^h[1-6]\.\s+(.*)$`)
	bqRe        = regexp.MustCompile(`^bq\.\s+(.*)$`)
	bulletRe    = regexp.MustCompile(`^([*-]+)\s+(.*)$`)
	numberedRe  = regexp.MustCompile(`^(#+)\s+(.*)$`)
	strikeRe    = regexp.MustCompile(`(^|[\s(])-(\S|\S[^\n]*?\S)-($|[\s).,!?:;])`)
	citeRe      = regexp.MustCompile(`\?\?(.+?)\?\?`)
)

// ConvertMarkup converts tracker wiki markup to chat markdown.
func ConvertMarkup(src string) string {
	if src == "" {
		return ""
	}
	src = strings.ReplaceAll(src, "\r\n", "\n")

	// Verbatim spans are swapped for placeholders so inline rules skip them.
	var held []string
	hold := func(s string) string {
		held = append(held, s)
		return fmt.Sprintf("\x00%d\x00", len(held)-1)
	}

	src = codeBlockRe.ReplaceAllStringFunc(src, func(m string) string {
		body := codeBlockRe.FindStringSubmatch(m)[2]
		return hold("```\n" + strings.Trim(body, "\n") + "\n```")
	})
	src = monoRe.ReplaceAllStringFunc(src, func(m string) string {
		return hold("`" + monoRe.FindStringSubmatch(m)[1] + "`")
	})
	src = linkRe.ReplaceAllStringFunc(src, func(m string) string {
		sm := linkRe.FindStringSubmatch(m)
		return hold("[" + strings.TrimSpace(sm[1]) + "](" + sm[2] + ")")
	})
	src = bareLinkRe.ReplaceAllStringFunc(src, func(m string) string {
		u := bareLinkRe.FindStringSubmatch(m)[1]
		return hold("[" + u + "](" + u + ")")
	})
	src = quoteRe.ReplaceAllStringFunc(src, func(m string) string {
		body := strings.Trim(quoteRe.FindStringSubmatch(m)[1], "\n")
		return "> " + strings.ReplaceAll(body, "\n", "\n> ")
	})
	src = strings.ReplaceAll(src, `\\`, "\n")

	lines := strings.Split(src, "\n")
	var numbers []int
	for i, line := range lines {
		if m := numberedRe.FindStringSubmatch(line); m != nil {
			depth := len(m[1])
			for len(numbers) < depth {
				numbers = append(numbers, 0)
			}
			numbers = numbers[:depth]
			numbers[depth-1]++
			lines[i] = fmt.Sprintf("%s%d. %s", indent(depth), numbers[depth-1], inline(m[2]))
			continue
		}
		numbers = numbers[:0]

		switch {
		case headingRe.MatchString(line):
			lines[i] = "*" + strings.TrimSpace(headingRe.FindStringSubmatch(line)[1]) + "*"
		case bqRe.MatchString(line):
			lines[i] = "> " + inline(bqRe.FindStringSubmatch(line)[1])
		case bulletRe.MatchString(line):
			m := bulletRe.FindStringSubmatch(line)
			lines[i] = indent(len(m[1])) + "• " + inline(m[2])
		default:
			lines[i] = inline(line)
		}
	}
	out := strings.Join(lines, "\n")

	for i := len(held) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("\x00%d\x00", i), held[i])
	}
	return strings.TrimSpace(out)
}

func inline(s string) string {
	s = strikeRe.ReplaceAllString(s, "$1~$2~$3")
	s = citeRe.ReplaceAllString(s, "_$1_")
	return s
}

func indent(depth int) string { return strings.Repeat("  ", depth-1) }

