package state

import (
	"strings"
	"sync"
	"time"
)

// Role is a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// FactKey names a key fact. Facts are set once and then frozen.
type FactKey string

const (
	FactWeapons      FactKey = "weapons"
	FactInjuries     FactKey = "injuries"
	FactCoercion     FactKey = "coercion_detected"
	FactTimeCritical FactKey = "time_critical"
	FactCodeUsed     FactKey = "code_used"
)

// MaxThreat is the top of the threat scale.
const MaxThreat = 10

// Conversation is the append-only incident record for one session.
type Conversation struct {
	mu             sync.Mutex
	messages       []Message
	threat         int
	summary        string
	scenario       string
	facts          map[FactKey]string
	safeWord       bool
	firstResponder string
	now            func() time.Time
}

// NewConversation returns an empty record.
func NewConversation() *Conversation {
	return &Conversation{facts: make(map[FactKey]string), now: time.Now}
}

// Append records a message and returns it.
func (c *Conversation) Append(role Role, text string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Message{Role: role, Text: text, At: c.now()}
	c.messages = append(c.messages, m)
	return m
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Recent returns up to the last n messages.
func (c *Conversation) Recent(n int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n >= len(c.messages) {
		return append([]Message(nil), c.messages...)
	}
	return append([]Message(nil), c.messages[len(c.messages)-n:]...)
}

// Threat returns the current threat level.
func (c *Conversation) Threat() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threat
}

// RaiseThreat lifts the level to max(current, level), clamped to MaxThreat.
// It never lowers it.
func (c *Conversation) RaiseThreat(level int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raiseThreatLocked(level)
	return c.threat
}

func (c *Conversation) raiseThreatLocked(level int) {
	if level > MaxThreat {
		level = MaxThreat
	}
	if level > c.threat {
		c.threat = level
	}
}

// Summary returns the situation summary.
func (c *Conversation) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// SetSummary writes the summary only if none exists yet.
func (c *Conversation) SetSummary(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary != "" || strings.TrimSpace(s) == "" {
		return false
	}
	c.summary = s
	return true
}

// OverwriteSummary replaces the summary unconditionally.
func (c *Conversation) OverwriteSummary(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = s
}

// Scenario returns the detected scenario name, if any.
func (c *Conversation) Scenario() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scenario
}

// SetFact records a key fact the first time only.
func (c *Conversation) SetFact(k FactKey, v string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setFactLocked(k, v)
}

func (c *Conversation) setFactLocked(k FactKey, v string) bool {
	if _, ok := c.facts[k]; ok || v == "" {
		return false
	}
	c.facts[k] = v
	return true
}

// Fact returns a key fact.
func (c *Conversation) Fact(k FactKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.facts[k]
	return v, ok
}

// VerifySafeWord marks the safe word as heard. It reports true only the
// first time; the flag is never reset.
func (c *Conversation) VerifySafeWord() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.safeWord {
		return false
	}
	c.safeWord = true
	return true
}

// SafeWordVerified reports whether the safe word was heard.
func (c *Conversation) SafeWordVerified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.safeWord
}

// SetFirstResponder records the contact who received the live call.
func (c *Conversation) SetFirstResponder(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstResponder = name
}

// FirstResponder returns the contact on the live call.
func (c *Conversation) FirstResponder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstResponder
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := &Conversation{
		messages:       append([]Message(nil), c.messages...),
		threat:         c.threat,
		summary:        c.summary,
		scenario:       c.scenario,
		facts:          make(map[FactKey]string, len(c.facts)),
		safeWord:       c.safeWord,
		firstResponder: c.firstResponder,
		now:            c.now,
	}
	for k, v := range c.facts {
		out.facts[k] = v
	}
	return out
}
