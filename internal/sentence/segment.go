// Package sentence breaks text into independently synthesizable units.
//
// A boundary is one of '.', '!' or '?' immediately followed by one or more
// whitespace characters. The whitespace run is consumed; the punctuation stays
// with the preceding segment. Segments are trimmed and empty ones are dropped.
package sentence

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment lazily yields the sentences of text in order. The sequence can be
// ranged over any number of times; each range starts from the beginning.
func Segment(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			end, next, ok := boundary(rest)
			if !ok {
				break
			}
			if seg := strings.TrimSpace(rest[:end]); seg != "" {
				if !yield(seg) {
					return
				}
			}
			rest = rest[next:]
		}
		if seg := strings.TrimSpace(rest); seg != "" {
			yield(seg)
		}
	}
}

// Collect returns all segments of text.
func Collect(text string) []string {
	var out []string
	for seg := range Segment(text) {
		out = append(out, seg)
	}
	return out
}

// boundary finds the first sentence boundary in s. end is the index just past
// the terminating punctuation, next is the index just past the whitespace run.
// A terminator at the very end of s, or followed only by non-space, is not a
// boundary.
func boundary(s string) (end, next int, ok bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if !isTerminator(r) {
			continue
		}
		j := skipSpace(s, i)
		if j > i {
			return i, j, true
		}
	}
	return 0, 0, false
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}
