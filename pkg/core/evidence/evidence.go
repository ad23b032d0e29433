// Package evidence builds and archives incident reports from a finished
// conversation.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

// ErrNotFound is returned when no report has the requested file name.
var ErrNotFound = errors.New("evidence: report not found")

var (
	controlMarkup = regexp.MustCompile(`\[(?:MODE|SIGNAL|TEXT|CONTACT)[^\]]*\]:?`)
	validFile     = regexp.MustCompile(`^evidence_[0-9]{8}_[0-9]{6}_[0-9a-f]{8}\.json$`)
)

// Entry is one transcript line.
type Entry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Report is an archived incident report.
type Report struct {
	ID         string          `json:"id"`
	File       string          `json:"file"`
	SessionID  string          `json:"session_id,omitempty"`
	User       string          `json:"user"`
	Location   *state.Location `json:"location,omitempty"`
	MapLink    string          `json:"map_link,omitempty"`
	Scenario   string          `json:"scenario,omitempty"`
	Threat     int             `json:"threat"`
	Summary    string          `json:"summary,omitempty"`
	Transcript []Entry         `json:"transcript"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Build assembles a report from the model-facing history. System entries
// are skipped, control markup is stripped and empty lines are dropped.
func Build(sessionID string, sess *state.Session, memory []core.ChatMessage, now time.Time) Report {
	id := uuid.New()
	user := sess.UserProfile().DisplayName()
	conv := sess.Conversation()
	r := Report{
		ID:        id.String(),
		File:      FileName(now, id),
		SessionID: sessionID,
		User:      user,
		Location:  sess.Location(),
		Scenario:  conv.Scenario(),
		Threat:    conv.Threat(),
		Summary:   conv.Summary(),
		CreatedAt: now.UTC(),
	}
	if r.Location != nil {
		r.MapLink = r.Location.MapLink()
	}
	for _, m := range memory {
		if m.Role == core.ChatSystem {
			continue
		}
		text := strings.TrimSpace(controlMarkup.ReplaceAllString(m.Content, ""))
		if text == "" {
			continue
		}
		speaker := user
		if m.Role == core.ChatAssistant {
			speaker = "CALYX"
		}
		r.Transcript = append(r.Transcript, Entry{Speaker: speaker, Text: text})
	}
	return r
}

// FileName is the artifact name for a report created at t.
func FileName(t time.Time, id uuid.UUID) string {
	return fmt.Sprintf("evidence_%s_%s.json", t.Format("20060102_150405"), strings.ReplaceAll(id.String(), "-", "")[:8])
}

// ValidFileName reports whether name could have come from FileName. The
// download route rejects anything else.
func ValidFileName(name string) bool {
	return validFile.MatchString(name)
}

// Text renders the report for humans.
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString("CALYX INCIDENT REPORT\n")
	fmt.Fprintf(&b, "User: %s\n", r.User)
	fmt.Fprintf(&b, "Date: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.Location != nil {
		fmt.Fprintf(&b, "Location: %v, %v\n", r.Location.Lat, r.Location.Lng)
		fmt.Fprintf(&b, "Map: %s\n", r.MapLink)
	}
	if r.Summary != "" {
		fmt.Fprintf(&b, "Situation: %s\n", r.Summary)
	}
	b.WriteString("\nTRANSCRIPT\n")
	for _, e := range r.Transcript {
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
	}
	return b.String()
}

// Vault archives reports.
type Vault interface {
	Save(ctx context.Context, r Report) error
	Load(ctx context.Context, file string) (Report, error)
}

// Memory is an in-process Vault.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemory returns an empty vault.
func NewMemory() *Memory {
	return &Memory{reports: make(map[string]Report)}
}

func (m *Memory) Save(_ context.Context, r Report) error {
	if r.File == "" {
		return core.EvidenceError("save", errors.New("report has no file name"))
	}
	m.mu.Lock()
	m.reports[r.File] = r
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, file string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[file]
	if !ok {
		return Report{}, ErrNotFound
	}
	return r, nil
}
