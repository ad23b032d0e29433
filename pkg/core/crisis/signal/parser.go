package signal

import (
	"bytes"
	"strings"
)

// maxTagBytes bounds how long an unterminated candidate may hold text back.
const maxTagBytes = 48

// Parser is an incremental directive scanner over a token stream. Text that
// precedes an unresolved "[" is held until the candidate resolves, so a
// directive split across fragments is still recognized. Each Feed inspects
// only new bytes plus the carried-over candidate.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	buf  []byte
	scan int
	open int
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{open: -1}
}

// Feed appends a fragment and returns the events it completes, in order.
func (p *Parser) Feed(fragment string) []Event {
	if fragment == "" {
		return nil
	}
	p.buf = append(p.buf, fragment...)

	var events []Event
	for p.scan < len(p.buf) {
		if p.open < 0 {
			idx := bytes.IndexByte(p.buf[p.scan:], '[')
			if idx < 0 {
				p.scan = len(p.buf)
				break
			}
			p.open = p.scan + idx
			p.scan = p.open + 1
			continue
		}

		c := p.buf[p.scan]
		body := p.buf[p.open+1 : p.scan]
		if c == ']' && hasFamilyPrefix(body) {
			tag, known := parseBody(string(body))
			p.buf = append(p.buf[:p.open], p.buf[p.scan+1:]...)
			p.scan = p.open
			p.open = -1
			if known {
				events = append(events, Signal(tag))
			}
			continue
		}
		if !canExtend(body, c) {
			// Not a directive; the bracket is literal text.
			p.scan = p.open + 1
			p.open = -1
			continue
		}
		p.scan++
	}

	if p.open < 0 && len(p.buf) > 0 {
		events = append(events, Text(string(p.buf)))
		p.reset()
	}
	return events
}

// Flush emits whatever is held at end of stream. An unterminated candidate
// that already names a directive family is dropped rather than spoken.
func (p *Parser) Flush() []Event {
	if len(p.buf) == 0 {
		p.reset()
		return nil
	}
	out := p.buf
	if p.open >= 0 && hasFamilyPrefix(p.buf[p.open+1:]) {
		out = p.buf[:p.open]
	}
	text := string(out)
	p.reset()
	if text == "" {
		return nil
	}
	return []Event{Text(text)}
}

// Pending reports whether text is being held behind an unresolved candidate.
func (p *Parser) Pending() bool {
	return len(p.buf) > 0
}

func (p *Parser) reset() {
	p.buf = p.buf[:0]
	p.scan = 0
	p.open = -1
}

func hasFamilyPrefix(body []byte) bool {
	return bytes.HasPrefix(body, []byte("MODE:")) || bytes.HasPrefix(body, []byte("SIGNAL:"))
}

// canExtend reports whether body+c may still close as a directive. Once a
// family prefix is complete any body up to maxTagBytes qualifies, so a
// malformed directive such as [SIGNAL:TIMER:now] is stripped, not spoken.
func canExtend(body []byte, c byte) bool {
	if len(body)+1 > maxTagBytes || c == '[' || c == '\n' {
		return false
	}
	s := string(body) + string(c)

	family, _, hasColon := strings.Cut(s, ":")
	if !hasColon {
		return strings.HasPrefix(string(FamilyMode), s) || strings.HasPrefix(string(FamilySignal), s)
	}
	return family == string(FamilyMode) || family == string(FamilySignal)
}
