// Package mode maps MODE directives to voice/behavior profiles. The profile
// set is data (profiles.yaml) and dispatch is a table lookup keyed by
// (mode, persona).
package mode

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
)

// Mode is a named behavioral configuration.
type Mode string

const (
	Default Mode = signal.ModeDefault
	Stealth Mode = signal.ModeStealth
	Decoy   Mode = signal.ModeDecoy
	Covert  Mode = signal.ModeCovert
	Calm    Mode = signal.ModeCalm
	Medical Mode = signal.ModeMedical
	Urgent  Mode = signal.ModeUrgent

	// Dispatcher is the telephone voice. No directive selects it.
	Dispatcher Mode = "DISPATCHER"
)

// Persona parameterizes Decoy.
type Persona string

const (
	Brother Persona = "brother"
	Father  Persona = "father"
	Friend  Persona = "friend"
)

// Key identifies a profile.
type Key struct {
	Mode    Mode
	Persona Persona
}

func (k Key) String() string {
	if k.Persona != "" {
		return string(k.Mode) + ":" + string(k.Persona)
	}
	return string(k.Mode)
}

// NewKey normalizes a (mode, persona) pair: Decoy always carries one of the
// three personas, defaulting to Friend, and every other mode carries none.
func NewKey(m Mode, persona string) Key {
	if m != Decoy {
		return Key{Mode: m}
	}
	switch p := Persona(strings.ToLower(strings.TrimSpace(persona))); p {
	case Brother, Father, Friend:
		return Key{Mode: m, Persona: p}
	default:
		return Key{Mode: m, Persona: Friend}
	}
}

// KeyFromTag converts a MODE directive to a key.
func KeyFromTag(tag signal.Tag) (Key, bool) {
	if tag.Family != signal.FamilyMode {
		return Key{}, false
	}
	return NewKey(Mode(tag.Name), tag.Persona), true
}

// Profile is the voice configuration for one key. It is immutable once loaded.
type Profile struct {
	VoiceID     string `yaml:"voice_id"`
	Style       string `yaml:"style"`
	Rate        int    `yaml:"rate"`
	Pitch       int    `yaml:"pitch"`
	Description string `yaml:"description"`
}

// Table is an immutable profile lookup.
type Table struct {
	profiles map[Key]Profile
}

type tableFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

var requiredKeys = []Key{
	{Mode: Default},
	{Mode: Stealth},
	{Mode: Decoy, Persona: Brother},
	{Mode: Decoy, Persona: Father},
	{Mode: Decoy, Persona: Friend},
	{Mode: Covert},
	{Mode: Calm},
	{Mode: Medical},
	{Mode: Urgent},
	{Mode: Dispatcher},
}

// LoadTable parses a YAML profile table. Every directive-reachable key and
// the dispatcher voice must be present.
func LoadTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	t := &Table{profiles: make(map[Key]Profile, len(f.Profiles))}
	for raw, p := range f.Profiles {
		m, persona, _ := strings.Cut(raw, ":")
		if strings.TrimSpace(p.VoiceID) == "" {
			return nil, fmt.Errorf("profile %s: voice_id is required", raw)
		}
		if p.Rate < -50 || p.Rate > 50 {
			return nil, fmt.Errorf("profile %s: rate must be within [-50, 50]", raw)
		}
		t.profiles[Key{Mode: Mode(strings.ToUpper(m)), Persona: Persona(strings.ToLower(persona))}] = p
	}
	for _, k := range requiredKeys {
		if _, ok := t.profiles[k]; !ok {
			return nil, fmt.Errorf("profile %s is missing", k)
		}
	}
	return t, nil
}

//go:embed profiles.yaml
var defaultProfiles []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// DefaultTable returns the built-in profile table.
func DefaultTable() *Table {
	defaultOnce.Do(func() {
		t, err := LoadTable(defaultProfiles)
		if err != nil {
			panic(fmt.Sprintf("mode: embedded profiles: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup returns the profile for k, falling back to Default for unknown keys.
func (t *Table) Lookup(k Key) Profile {
	if p, ok := t.profiles[k]; ok {
		return p
	}
	return t.profiles[Key{Mode: Default}]
}

// Transition describes one effective mode change.
type Transition struct {
	From    Key
	To      Key
	Profile Profile
}

// Machine is the per-session mode state. It is not safe for concurrent use;
// state.Session serializes access.
type Machine struct {
	table   *Table
	current Key
	profile Profile
}

// NewMachine starts in Default.
func NewMachine(t *Table) *Machine {
	if t == nil {
		t = DefaultTable()
	}
	start := Key{Mode: Default}
	return &Machine{table: t, current: start, profile: t.Lookup(start)}
}

// Current returns the active key and profile.
func (m *Machine) Current() (Key, Profile) {
	return m.current, m.profile
}

// Apply moves to the mode named by a MODE directive. Re-applying the active
// (mode, persona) pair is a no-op and reports false.
func (m *Machine) Apply(tag signal.Tag) (Transition, bool) {
	k, ok := KeyFromTag(tag)
	if !ok {
		return Transition{}, false
	}
	return m.Set(k)
}

// Set moves to k directly.
func (m *Machine) Set(k Key) (Transition, bool) {
	if k == m.current {
		return Transition{}, false
	}
	tr := Transition{From: m.current, To: k, Profile: m.table.Lookup(k)}
	m.current = k
	m.profile = tr.Profile
	return tr, true
}
