// Package signal extracts control directives such as [MODE:CALM] and
// [SIGNAL:TIMER] from a streamed completion while passing the spoken text
// through untouched.
package signal

import (
	"strings"
)

// Family is the directive namespace.
type Family string

const (
	FamilyMode   Family = "MODE"
	FamilySignal Family = "SIGNAL"
)

// Directive names recognized after MODE:.
const (
	ModeDefault = "DEFAULT"
	ModeStealth = "STEALTH"
	ModeDecoy   = "DECOY"
	ModeCovert  = "COVERT"
	ModeCalm    = "CALM"
	ModeMedical = "MEDICAL"
	ModeUrgent  = "URGENT"
)

// Directive names recognized after SIGNAL:.
const (
	SignalCall  = "CALL"
	SignalTimer = "TIMER"
	SignalSafe  = "SAFE"
)

var knownNames = map[Family]map[string]struct{}{
	FamilyMode: {
		ModeDefault: {}, ModeStealth: {}, ModeDecoy: {}, ModeCovert: {},
		ModeCalm: {}, ModeMedical: {}, ModeUrgent: {},
	},
	FamilySignal: {
		SignalCall: {}, SignalTimer: {}, SignalSafe: {},
	},
}

// Tag is one parsed directive. Persona is lower-cased and only set for MODE.
type Tag struct {
	Family  Family
	Name    string
	Persona string
}

// Is reports whether t is the given family/name pair.
func (t Tag) Is(family Family, name string) bool {
	return t.Family == family && t.Name == name
}

func (t Tag) String() string {
	if t.Persona != "" {
		return "[" + string(t.Family) + ":" + t.Name + ":" + t.Persona + "]"
	}
	return "[" + string(t.Family) + ":" + t.Name + "]"
}

// EventKind discriminates Event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventSignal
)

// Event is either cleaned text or a directive.
type Event struct {
	Kind EventKind
	Text string
	Tag  Tag
}

// Text builds a text event.
func Text(s string) Event { return Event{Kind: EventText, Text: s} }

// Signal builds a directive event.
func Signal(t Tag) Event { return Event{Kind: EventSignal, Tag: t} }

// ParseTag parses a complete bracketed directive such as "[MODE:DECOY:brother]".
// Unknown names are rejected.
func ParseTag(s string) (Tag, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return Tag{}, false
	}
	return parseBody(s[1 : len(s)-1])
}

// StripTags removes every complete directive from s.
func StripTags(s string) string {
	p := NewParser()
	var b strings.Builder
	for _, ev := range p.Feed(s) {
		if ev.Kind == EventText {
			b.WriteString(ev.Text)
		}
	}
	for _, ev := range p.Flush() {
		if ev.Kind == EventText {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func parseBody(body string) (Tag, bool) {
	family, rest, ok := strings.Cut(body, ":")
	if !ok {
		return Tag{}, false
	}
	f := Family(family)
	names, ok := knownNames[f]
	if !ok {
		return Tag{}, false
	}
	name, persona, hasPersona := strings.Cut(rest, ":")
	if name == "" || !isUpper(name) {
		return Tag{}, false
	}
	if hasPersona {
		if f != FamilyMode || persona == "" || !isLetters(persona) {
			return Tag{}, false
		}
	}
	if _, ok := names[name]; !ok {
		return Tag{}, false
	}
	return Tag{Family: f, Name: name, Persona: strings.ToLower(persona)}, true
}

func isUpper(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
