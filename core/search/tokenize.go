package search

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// token is a normalized word and its byte span in the original text.
type token struct {
	Term  string
	Start int
	End   int
}

var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// fold lowercases s and strips combining marks, so "Crème" and "creme"
// produce the same term.
func fold(s string) string {
	t := foldPool.Get().(transform.Transformer)
	defer foldPool.Put(t)
	t.Reset()
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// tokenize splits text into words of letters and digits.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			tokens = appendToken(tokens, text, start, i)
			start = -1
		}
		i += size
	}
	if start >= 0 {
		tokens = appendToken(tokens, text, start, len(text))
	}
	return tokens
}

func appendToken(tokens []token, text string, start, end int) []token {
	term := fold(text[start:end])
	if term == "" {
		return tokens
	}
	return append(tokens, token{Term: term, Start: start, End: end})
}

// terms returns the normalized words of a query, in order.
func terms(query string) []string {
	toks := tokenize(query)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.Term)
	}
	return out
}
