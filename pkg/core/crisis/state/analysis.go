package state

import (
	"fmt"
	"strings"
)

type scenario struct {
	name        string
	level       int
	description string
	keywords    []string
}

// Scenarios are checked in order; the first match wins.
var scenarios = []scenario{
	{"HOME_INTRUSION", 8, "reported a possible intruder in their home", []string{"intruder", "break in", "someone in my house", "breaking in"}},
	{"STALKING", 7, "is being followed by someone", []string{"following", "stalking", "behind me", "someone following"}},
	{"DOMESTIC_VIOLENCE", 8, "reported domestic violence", []string{"hit me", "abusive", "hurts me", "violent"}},
	{"MEDICAL_EMERGENCY", 9, "is having a medical emergency", []string{"bleeding", "choking", "seizure", "heart attack"}},
	{"PANIC_ATTACK", 5, "is having a panic attack", []string{"panic", "anxiety attack", "can't breathe", "panicking"}},
	{"STRANDED", 4, "is stranded and needs help", []string{"car broke", "stranded", "flat tire", "stuck"}},
	{"DRINK_SPIKING", 8, "may have been drugged", []string{"drink", "drugged", "spiked", "dizzy"}},
	{"HARASSMENT", 6, "is being harassed", []string{"harassing", "threatening", "aggressive", "won't leave"}},
	{"GENERAL_DANGER", 5, "feels unsafe and scared", []string{"scared", "afraid", "help", "danger"}},
}

var (
	weaponWords = []string{"gun", "knife", "weapon"}
	injuryWords = []string{"hurt", "bleeding", "injured"}
)

// Assessment reports what one Analyze call changed.
type Assessment struct {
	Scenario string
	Threat   int
	Weapons  bool
	Injuries bool
	Coercion bool
}

// Analyze runs keyword threat assessment over one user utterance. Threat is
// only ever raised, the summary is only written when empty, and facts are
// set once.
func (c *Conversation) Analyze(text, userName string) Assessment {
	lower := strings.ToLower(text)
	if userName == "" {
		userName = DefaultUserName
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var a Assessment
	for _, sc := range scenarios {
		if !containsAny(lower, sc.keywords) {
			continue
		}
		a.Scenario = sc.name
		c.scenario = sc.name
		c.raiseThreatLocked(sc.level)
		if c.summary == "" {
			c.summary = userName + " " + sc.description
		}
		break
	}

	if containsAny(lower, weaponWords) && c.setFactLocked(FactWeapons, "Weapon mentioned") {
		a.Weapons = true
		c.raiseThreatLocked(c.threat + 2)
		if c.summary != "" {
			c.summary += ". Weapon may be involved"
		}
	}
	if containsAny(lower, injuryWords) && c.setFactLocked(FactInjuries, "Injury reported") {
		a.Injuries = true
	}
	if strings.Contains(lower, "i'm fine") && c.threat > 5 && c.setFactLocked(FactCoercion, "true") {
		a.Coercion = true
	}

	if c.summary == "" {
		start := len(c.messages) - 3
		if start < 0 {
			start = 0
		}
		for i := len(c.messages) - 1; i >= start; i-- {
			m := c.messages[i]
			if m.Role == RoleUser && len(m.Text) > 10 {
				c.summary = "said: " + truncate(m.Text, 100)
				break
			}
		}
	}

	a.Threat = c.threat
	return a
}

// ThreatLabel buckets a threat level.
func ThreatLabel(level int) string {
	switch {
	case level < 4:
		return "LOW"
	case level < 7:
		return "MEDIUM"
	default:
		return "HIGH"
	}
}

// EmergencyBriefing is a one-line summary for responders.
func (c *Conversation) EmergencyBriefing(userName string) string {
	if userName == "" {
		userName = DefaultUserName
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var parts []string
	if c.scenario != "" {
		parts = append(parts, "SCENARIO: "+c.scenario)
	}
	parts = append(parts, "THREAT LEVEL: "+ThreatLabel(c.threat))
	if v := c.facts[FactWeapons]; v != "" {
		parts = append(parts, "WEAPONS: "+v)
	}
	if v := c.facts[FactInjuries]; v != "" {
		parts = append(parts, "INJURIES: "+v)
	}
	if c.facts[FactCoercion] != "" {
		parts = append(parts, "WARNING: Possible coercion")
	}
	if v := c.facts[FactCodeUsed]; v != "" {
		parts = append(parts, "COVERT CODE: "+v)
	}
	parts = append(parts, "USER: "+userName)
	if c.summary != "" {
		parts = append(parts, "SITUATION: "+c.summary)
	}
	return strings.Join(parts, " | ")
}

// SMSBriefing is the alert text sent to contacts.
func (c *Conversation) SMSBriefing(userName string, loc *Location) string {
	if userName == "" {
		userName = DefaultUserName
	}
	c.mu.Lock()
	summary, scenario := c.summary, c.scenario
	c.mu.Unlock()

	lines := []string{"CALYX EMERGENCY ALERT", userName + " needs your help!"}
	switch {
	case summary != "":
		lines = append(lines, "\n"+truncate(summary, 120))
	case scenario != "":
		lines = append(lines, "\nType: "+titleScenario(scenario))
	}
	if loc != nil {
		lines = append(lines, "\nLOCATION:", loc.MapLink())
	}
	lines = append(lines, "\nCall is connecting you to Calyx AI for more info.")
	return strings.Join(lines, "\n")
}

// EscalationContext describes the incident for the relay: the existing
// summary, else the latest user words, else the trigger reason.
func (c *Conversation) EscalationContext(userName, reason string) string {
	if userName == "" {
		userName = DefaultUserName
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.summary != "" {
		return c.summary
	}
	start := len(c.messages) - 5
	if start < 0 {
		start = 0
	}
	var said []string
	for _, m := range c.messages[start:] {
		if m.Role == RoleUser && len(m.Text) > 5 {
			said = append(said, m.Text)
		}
	}
	if len(said) > 2 {
		said = said[len(said)-2:]
	}
	if len(said) > 0 {
		return userName + ": " + truncate(strings.Join(said, ". "), 150)
	}
	return fmt.Sprintf("%s triggered %s", userName, reason)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func titleScenario(s string) string {
	words := strings.Split(strings.ToLower(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
