package search

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxExcerptRunes = 160
	leadRunes       = 40
	ellipsis        = "…"
	markOpen        = "<mark>"
	markClose       = "</mark>"
)

// excerpt cuts a window of at most maxRunes runes around the first span,
// moving both ends to word boundaries, and wraps every span inside the
// window in <mark> tags. Text outside the marks is HTML-escaped.
func excerpt(text string, spans []token, maxRunes int) string {
	if text == "" {
		return ""
	}
	anchor := 0
	if len(spans) > 0 {
		anchor = spans[0].Start
	}

	lead := leadRunes
	if maxRunes/4 < lead {
		lead = maxRunes / 4
	}
	start := backRunes(text, anchor, lead)
	if start > 0 {
		start = nextWordStart(text, start, anchor)
	}
	end := forwardRunes(text, start, maxRunes)
	if end < len(text) {
		end = lastWordEnd(text, start, end)
	}
	if len(spans) > 0 && end < spans[0].End {
		end = spans[0].End
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	pos := start
	for _, sp := range spans {
		if sp.Start < pos || sp.End > end {
			continue
		}
		b.WriteString(html.EscapeString(text[pos:sp.Start]))
		b.WriteString(markOpen)
		b.WriteString(html.EscapeString(text[sp.Start:sp.End]))
		b.WriteString(markClose)
		pos = sp.End
	}
	b.WriteString(html.EscapeString(text[pos:end]))
	if end < len(text) {
		b.WriteString(ellipsis)
	}
	return strings.TrimSpace(b.String())
}

// backRunes returns the byte offset n runes before from.
func backRunes(s string, from, n int) int {
	for i := 0; i < n && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:from])
		from -= size
	}
	return from
}

// forwardRunes returns the byte offset n runes after from.
func forwardRunes(s string, from, n int) int {
	for i := 0; i < n && from < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[from:])
		from += size
	}
	return from
}

// nextWordStart moves offset forward past a partial word, never beyond limit.
func nextWordStart(s string, offset, limit int) int {
	prev, _ := utf8.DecodeLastRuneInString(s[:offset])
	if !isWordRune(prev) {
		return offset
	}
	for offset < limit {
		r, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
		if unicode.IsSpace(r) {
			return offset
		}
	}
	return limit
}

// lastWordEnd moves end back to the last whitespace after start, unless that
// would leave nothing.
func lastWordEnd(s string, start, end int) int {
	next, _ := utf8.DecodeRuneInString(s[end:])
	if !isWordRune(next) {
		return end
	}
	for cut := end; cut > start; {
		r, size := utf8.DecodeLastRuneInString(s[:cut])
		if unicode.IsSpace(r) {
			return cut - size
		}
		cut -= size
	}
	return end
}
