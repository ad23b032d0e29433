// Package state holds the per-connection session record and conversation
// context. Both are created at connection start, owned by one orchestrator,
// and discarded at disconnect. A telephone sub-session forks a copy instead
// of sharing the parent's.
package state

import (
	"sync"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/mode"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
)

// LatencyWindow is how many latency samples are kept.
const LatencyWindow = 20

// Session is the mutable record for one connection.
type Session struct {
	mu          sync.Mutex
	machine     *mode.Machine
	table       *mode.Table
	modeChanged bool
	interrupted bool
	phone       bool
	callActive  bool
	silent      bool
	latency     []int
	incident    string
	profile     UserProfile
	location    *Location
	conv        *Conversation
}

// NewSession starts in DEFAULT with an empty conversation.
func NewSession(table *mode.Table) *Session {
	if table == nil {
		table = mode.DefaultTable()
	}
	return &Session{
		machine: mode.NewMachine(table),
		table:   table,
		conv:    NewConversation(),
	}
}

// Conversation returns the session's conversation context.
func (s *Session) Conversation() *Conversation {
	return s.conv
}

// Mode returns the active mode key.
func (s *Session) Mode() mode.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, _ := s.machine.Current()
	return k
}

// VoiceProfile returns the active voice profile.
func (s *Session) VoiceProfile() mode.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p := s.machine.Current()
	return p
}

// ApplyMode runs a MODE directive through the state machine. On an actual
// change the profile is swapped and the mode_changed flag raised.
func (s *Session) ApplyMode(tag signal.Tag) (mode.Transition, bool) {
	k, ok := mode.KeyFromTag(tag)
	if !ok {
		return mode.Transition{}, false
	}
	return s.SetMode(k)
}

// SetMode moves to k directly.
func (s *Session) SetMode(k mode.Key) (mode.Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, changed := s.machine.Set(k)
	if !changed {
		return tr, false
	}
	s.modeChanged = true
	if k.Mode == mode.Covert {
		s.conv.SetFact(FactCodeUsed, "covert")
	}
	return tr, true
}

// TakeModeChange reports and clears the mode_changed flag.
func (s *Session) TakeModeChange() (mode.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.modeChanged {
		return mode.Key{}, false
	}
	s.modeChanged = false
	k, _ := s.machine.Current()
	return k, true
}

// SignalInterruption marks in-flight delivery as superseded.
func (s *Session) SignalInterruption() {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
}

// ResetInterruption clears the flag at the start of a turn.
func (s *Session) ResetInterruption() {
	s.mu.Lock()
	s.interrupted = false
	s.mu.Unlock()
}

// Interrupted reports whether delivery should stop.
func (s *Session) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// IsPhoneCall reports whether this is a telephone sub-session.
func (s *Session) IsPhoneCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phone
}

// TryActivateCall sets call_active if it was clear and reports whether it did.
func (s *Session) TryActivateCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callActive {
		return false
	}
	s.callActive = true
	return true
}

// EndCall clears call_active so a new escalation can be armed.
func (s *Session) EndCall() {
	s.mu.Lock()
	s.callActive = false
	s.mu.Unlock()
}

// CallActive reports whether an escalation call is in progress.
func (s *Session) CallActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callActive
}

// SetSilent toggles silent mode.
func (s *Session) SetSilent(on bool) {
	s.mu.Lock()
	s.silent = on
	s.mu.Unlock()
}

// Silent reports whether audio ingestion and delivery are suppressed.
func (s *Session) Silent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silent
}

// AddLatencySample records a first-token latency in milliseconds.
func (s *Session) AddLatencySample(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = append(s.latency, ms)
	if len(s.latency) > LatencyWindow {
		s.latency = append(s.latency[:0], s.latency[len(s.latency)-LatencyWindow:]...)
	}
}

// LatencySamples is the number of kept samples.
func (s *Session) LatencySamples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latency)
}

// AverageLatency is the integer mean of the kept samples.
func (s *Session) AverageLatency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latency) == 0 {
		return 0
	}
	sum := 0
	for _, v := range s.latency {
		sum += v
	}
	return sum / len(s.latency)
}

// SetUserProfile replaces the user profile.
func (s *Session) SetUserProfile(p UserProfile) {
	s.mu.Lock()
	s.profile = p.Clone()
	s.mu.Unlock()
}

// UserProfile returns a copy of the user profile.
func (s *Session) UserProfile() UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// SetLocation records the latest location. Last write wins.
func (s *Session) SetLocation(l Location) {
	s.mu.Lock()
	s.location = &l
	s.mu.Unlock()
}

// Location returns the latest location, or nil.
func (s *Session) Location() *Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		return nil
	}
	l := *s.location
	return &l
}

// UpdateIncidentContext records the escalation context and overwrites the
// situation summary with it.
func (s *Session) UpdateIncidentContext(text string) {
	s.mu.Lock()
	s.incident = text
	s.mu.Unlock()
	s.conv.OverwriteSummary(text)
}

// IncidentContext returns the last escalation context.
func (s *Session) IncidentContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incident
}

// Fork returns an independent telephone sub-session seeded from s. The fork
// shares no mutable state with s.
func (s *Session) Fork() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	child := &Session{
		machine:  mode.NewMachine(s.table),
		table:    s.table,
		phone:    true,
		incident: s.incident,
		profile:  s.profile.Clone(),
		conv:     s.conv.Clone(),
	}
	child.machine.Set(mode.Key{Mode: mode.Dispatcher})
	if s.location != nil {
		l := *s.location
		child.location = &l
	}
	if k, _ := s.machine.Current(); k.Mode == mode.Covert {
		child.conv.SetFact(FactCodeUsed, "covert")
	}
	return child
}
