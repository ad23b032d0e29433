// Package relay fans an escalation out to the user's emergency contacts:
// a briefing SMS to every contact, a live bridged call to the first one and
// a spoken notice to the rest.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/telephony/twilio"
)

// FallbackContactName labels the configured fallback number.
const FallbackContactName = "Emergency Contact"

// Carrier sends SMS and places calls. *twilio.Client satisfies it.
type Carrier interface {
	Configured() bool
	SendSMS(ctx context.Context, to, body string) (twilio.Resource, error)
	Call(ctx context.Context, to, twiml string) (twilio.Resource, error)
}

// Config holds relay settings.
type Config struct {
	// PublicDomain is where the carrier reaches /ws/twilio and /download.
	PublicDomain string
	// FallbackNumber is used when the user configured no contacts.
	FallbackNumber string
}

// Outcome reports what Trigger did.
type Outcome struct {
	// Skipped is true when a call was already active.
	Skipped bool
	// Simulated is true when no carrier is configured.
	Simulated bool
	Contacts  int
	SMSSent   int
	// LiveCallSID identifies the bridged call to the first contact.
	LiveCallSID  string
	FirstContact string
}

// Guardian runs escalations.
type Guardian struct {
	carrier Carrier
	cfg     Config
	logger  *slog.Logger
}

// New builds a Guardian. A nil or unconfigured carrier runs in simulation
// mode: everything is logged and nothing is sent.
func New(carrier Carrier, cfg Config, logger *slog.Logger) *Guardian {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guardian{carrier: carrier, cfg: cfg, logger: logger}
}

func (g *Guardian) live() bool {
	return g.carrier != nil && g.carrier.Configured()
}

// Contacts returns the user's contacts with usable numbers, or the fallback
// number when there are none.
func (g *Guardian) Contacts(p state.UserProfile) []state.Contact {
	var out []state.Contact
	for _, c := range p.Contacts {
		c.Phone = strings.TrimSpace(c.Phone)
		if c.Phone == "" {
			continue
		}
		if strings.TrimSpace(c.Name) == "" {
			c.Name = "Contact"
		}
		out = append(out, c)
	}
	if len(out) == 0 && strings.TrimSpace(g.cfg.FallbackNumber) != "" {
		out = []state.Contact{{Name: FallbackContactName, Phone: strings.TrimSpace(g.cfg.FallbackNumber)}}
	}
	return out
}

// Trigger escalates once per active call. It sets call_active on sess and
// clears it again on failure, or when no call was placed, so a later
// escalation can be armed.
func (g *Guardian) Trigger(ctx context.Context, sessionID string, sess *state.Session) (Outcome, error) {
	if !sess.TryActivateCall() {
		g.logger.Info("escalation skipped, call already active")
		return Outcome{Skipped: true}, nil
	}

	profile := sess.UserProfile()
	contacts := g.Contacts(profile)
	out := Outcome{Contacts: len(contacts)}
	if len(contacts) == 0 {
		sess.EndCall()
		g.logger.Warn("escalation has no contacts configured")
		return out, core.RelayError("trigger", errors.New("no emergency contacts configured"))
	}

	user := profile.DisplayName()
	briefing := sess.Conversation().SMSBriefing(user, sess.Location())

	if !g.live() {
		out.Simulated = true
		sess.EndCall()
		g.logger.Info("relay simulation", "contacts", len(contacts), "sms", truncate(briefing, 100))
		return out, nil
	}

	var smsErrs []error
	for _, c := range contacts {
		if _, err := g.carrier.SendSMS(ctx, c.Phone, fmt.Sprintf("Hi %s,\n\n%s", c.Name, briefing)); err != nil {
			g.logger.Warn("briefing sms failed", "contact", c.Name, "error", err)
			smsErrs = append(smsErrs, err)
			continue
		}
		out.SMSSent++
		g.logger.Info("briefing sms sent", "contact", c.Name)
	}

	if strings.TrimSpace(g.cfg.PublicDomain) == "" {
		sess.EndCall()
		if out.SMSSent == 0 {
			return out, core.RelayError("sms", errors.Join(smsErrs...))
		}
		g.logger.Warn("no public domain configured, live call skipped")
		return out, nil
	}

	first := contacts[0]
	twiml, err := twilio.ConnectStreamTwiML(twilio.StreamURL(g.cfg.PublicDomain), sessionID)
	if err != nil {
		sess.EndCall()
		return out, core.RelayError("twiml", err)
	}
	res, err := g.carrier.Call(ctx, first.Phone, twiml)
	if err != nil {
		sess.EndCall()
		g.logger.Warn("live call failed", "contact", first.Name, "error", err)
		return out, core.RelayError("call", errors.Join(append(smsErrs, err)...))
	}
	out.LiveCallSID = res.SID
	out.FirstContact = first.Name
	sess.Conversation().SetFirstResponder(first.Name)
	g.logger.Info("live call placed", "contact", first.Name, "call_sid", res.SID)

	notice := fmt.Sprintf("This is Calyx emergency system. %s has triggered an emergency alert. "+
		"Please check your SMS for details and location. Another contact is being connected to the AI system for more information.", user)
	for _, c := range contacts[1:] {
		say, err := twilio.SayTwiML(notice)
		if err == nil {
			_, err = g.carrier.Call(ctx, c.Phone, say)
		}
		if err != nil {
			g.logger.Warn("notice call failed", "contact", c.Name, "error", err)
			continue
		}
		g.logger.Info("notice call placed", "contact", c.Name)
	}
	return out, nil
}

// EvidenceLink is the public download URL for an archived report.
func (g *Guardian) EvidenceLink(file string) string {
	d := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(g.cfg.PublicDomain), "https://"), "http://")
	return "https://" + strings.Trim(d, "/") + "/download/" + file
}

// SendEvidenceLink texts the report link to every contact. It does nothing
// without a carrier or public domain.
func (g *Guardian) SendEvidenceLink(ctx context.Context, file string, p state.UserProfile) int {
	if !g.live() || strings.TrimSpace(g.cfg.PublicDomain) == "" || file == "" {
		return 0
	}
	body := "CALYX INCIDENT REPORT: " + g.EvidenceLink(file)
	sent := 0
	for _, c := range g.Contacts(p) {
		if _, err := g.carrier.SendSMS(ctx, c.Phone, body); err != nil {
			g.logger.Warn("evidence sms failed", "contact", c.Name, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
