package sentence

import "strings"

// Splitter segments text that arrives in fragments, such as tokens from a
// streaming chat completion. A sentence is released as soon as its boundary
// has been seen, so synthesis can start before the reply is complete.
//
// Feeding any fragmentation of a text through Write and then calling Flush
// produces the same segments as Segment on the whole text.
type Splitter struct {
	pending strings.Builder
}

// Write appends a fragment and returns the sentences it completed, in order.
func (s *Splitter) Write(fragment string) []string {
	if fragment == "" {
		return nil
	}
	s.pending.WriteString(fragment)

	rest := s.pending.String()
	var out []string
	for {
		end, next, ok := boundary(rest)
		if !ok {
			break
		}
		if seg := strings.TrimSpace(rest[:end]); seg != "" {
			out = append(out, seg)
		}
		rest = rest[next:]
	}

	if len(out) > 0 || len(rest) != s.pending.Len() {
		s.pending.Reset()
		s.pending.WriteString(rest)
	}
	return out
}

// Flush returns the trailing text that never reached a boundary, trimmed, and
// resets the splitter. It returns "" when nothing speakable is pending.
func (s *Splitter) Flush() string {
	seg := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	return seg
}

// Pending returns the buffered text not yet released.
func (s *Splitter) Pending() string {
	return s.pending.String()
}
