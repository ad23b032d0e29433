// Package voice turns a cleaned completion stream into paced,
// sentence-sized synthesis requests.
package voice

import (
	"strings"
)

const (
	// DefaultMinSegmentChars is the browser threshold. A terminal mark only
	// closes a segment once at least this many characters are buffered.
	DefaultMinSegmentChars = 8
	// PhoneMinSegmentChars is the stricter threshold used on phone calls.
	PhoneMinSegmentChars = 11
)

// Segmenter accumulates text and extracts complete sentences.
type Segmenter struct {
	buf      strings.Builder
	minChars int
}

// NewSegmenter returns a Segmenter. minChars <= 0 uses DefaultMinSegmentChars.
func NewSegmenter(minChars int) *Segmenter {
	if minChars <= 0 {
		minChars = DefaultMinSegmentChars
	}
	return &Segmenter{minChars: minChars}
}

// Add appends text and returns every sentence it completed. A terminal mark
// at the very end of the buffer is held until the next character shows it
// is not part of a number or abbreviation.
func (s *Segmenter) Add(text string) []string {
	s.buf.WriteString(text)
	content := s.buf.String()

	var out []string
	last := 0
	for i := 0; i < len(content); i++ {
		if !isSentenceEnd(content, i) {
			continue
		}
		sentence := strings.TrimSpace(content[last : i+1])
		if len(sentence) < s.minChars {
			continue
		}
		out = append(out, sentence)
		last = i + 1
	}
	if last > 0 {
		rest := content[last:]
		s.buf.Reset()
		s.buf.WriteString(rest)
	}
	return out
}

// Flush returns whatever is buffered, terminated with a period if it lacks
// terminal punctuation, and clears the buffer.
func (s *Segmenter) Flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if rest == "" {
		return ""
	}
	if !isTerminal(rest[len(rest)-1]) {
		rest += "."
	}
	return rest
}

// Pending returns the raw buffered text.
func (s *Segmenter) Pending() string {
	return s.buf.String()
}

// Reset drops buffered text.
func (s *Segmenter) Reset() {
	s.buf.Reset()
}

func isTerminal(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func isSentenceEnd(s string, i int) bool {
	if !isTerminal(s[i]) {
		return false
	}
	if i+1 >= len(s) || !isSpace(s[i+1]) {
		return false
	}
	return !(s[i] == '.' && isAbbreviation(s, i))
}

var abbreviations = []string{
	"Dr.", "Mr.", "Mrs.", "Ms.", "Jr.", "Sr.", "St.",
	"Prof.", "Inc.", "Ltd.", "Co.", "vs.", "etc.",
	"i.e.", "e.g.", "a.m.", "p.m.", "U.S.", "U.K.",
}

func isAbbreviation(s string, i int) bool {
	start := i
	for start > 0 && !isSpace(s[start-1]) {
		start--
	}
	word := s[start : i+1]
	for _, abbr := range abbreviations {
		if strings.EqualFold(word, abbr) {
			return true
		}
	}
	// Single capital initial.
	return i >= 1 && s[i-1] >= 'A' && s[i-1] <= 'Z' && (i < 2 || isSpace(s[i-2]))
}
