package session

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
	"github.com/sanchita-suni/Calyx/pkg/core/voice"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/tts"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/protocol"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
)

const (
	reasonAIProtocol    = "AI safety protocol"
	reasonAIRequestCall = "AI requested call"
	reasonUserRequest   = "user requested"

	safeWordEndedMessage = "Safe word confirmed. Session ended."
	deliveryBuffer       = 32
)

// runVoiceTurn answers one final transcript with streamed speech.
// Directives are applied at the point they occur in the reply.
func (s *LiveSession) runVoiceTurn(ctx context.Context, text string) {
	if s.sess.Silent() {
		return
	}
	s.suppressed.Store(false)
	s.sess.ResetInterruption()
	turnID := s.nextTurnID()
	s.activeTurn.Store(turnID)
	defer s.activeTurn.Store("")
	_ = s.sendJSONPriority(protocol.NewClear())

	if userRequestedCall(text) {
		s.spawn(func() { s.escalate(reasonUserRequest) })
	}

	items := make(chan voice.Item, deliveryBuffer)
	var reply replyResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(items)
		adapter := voice.NewAdapter(voice.DefaultMinSegmentChars)
		push := func(batch []voice.Item) {
			for _, it := range batch {
				select {
				case items <- it:
				case <-gctx.Done():
					return
				}
			}
		}
		r := s.companion.Respond(gctx, text, false, func(ev signal.Event) {
			push(adapter.Feed(ev))
		})
		push(adapter.Finish())
		reply.set(r.Fallback, r.FirstToken.Milliseconds(), r.Err)
		return nil
	})
	g.Go(func() error {
		for it := range items {
			switch it.Kind {
			case voice.ItemMarker:
				s.applyTag(it.Tag)
			case voice.ItemSpeech:
				s.speak(gctx, turnID, it.Text)
			}
		}
		return nil
	})
	_ = g.Wait()

	s.recordTurn("voice", reply)
}

// runTextTurn answers a typed message with a single text response. No audio
// is produced.
func (s *LiveSession) runTextTurn(ctx context.Context, text string) {
	if !containsFold(text, "cancel") {
		s.suppressed.Store(false)
	}
	s.sess.ResetInterruption()
	if userRequestedCall(text) {
		s.spawn(func() { s.escalate(reasonUserRequest) })
	}

	r := s.companion.Respond(ctx, text, true, nil)
	_ = s.sendJSON(protocol.NewAITextResponse(r.Text, s.sess.AverageLatency()))
	for _, tag := range r.Signals {
		s.applyTag(tag)
	}
	var reply replyResult
	reply.set(r.Fallback, r.FirstToken.Milliseconds(), r.Err)
	s.recordTurn("text", reply)
}

type replyResult struct {
	fallback     bool
	firstTokenMS int64
	err          error
}

func (r *replyResult) set(fallback bool, firstTokenMS int64, err error) {
	r.fallback, r.firstTokenMS, r.err = fallback, firstTokenMS, err
}

func (s *LiveSession) recordTurn(input string, r replyResult) {
	if r.err != nil {
		s.metrics.RecordFailure(metrics.ChannelBrowser, string(core.KindOf(r.err)))
	}
	s.metrics.RecordTurn(metrics.ChannelBrowser, input, r.fallback, msDuration(r.firstTokenMS))
}

// speak synthesizes one sentence with the active voice profile and paces
// the next one. Synthesis failures skip the sentence.
func (s *LiveSession) speak(ctx context.Context, turnID, text string) {
	if s.tts == nil || s.sess.Interrupted() || s.sess.Silent() {
		return
	}
	p := s.sess.VoiceProfile()
	stream, err := s.tts.SynthesizeStream(ctx, text, tts.SynthesizeOptions{
		Voice: p.VoiceID,
		Style: p.Style,
		Rate:  p.Rate,
		Pitch: p.Pitch,
	})
	if err != nil {
		s.warnCollaborator("synthesis failed", core.SynthesisError("stream", err))
		return
	}
	defer stream.Close()

	for chunk := range stream.Chunks() {
		if s.sess.Interrupted() || s.isTurnCanceled(turnID) {
			return
		}
		if err := s.sendAudio(turnID, chunk); err != nil {
			s.logger.Debug("audio dropped", "turn_id", turnID, "error", err)
		}
	}
	if err := stream.Err(); err != nil {
		s.warnCollaborator("synthesis stream failed", core.SynthesisError("stream", err))
		return
	}
	if err := s.pacer.Wait(ctx, text, p.Rate); err != nil {
		return
	}
}

// applyTag acts on one directive from the companion.
func (s *LiveSession) applyTag(tag signal.Tag) {
	switch tag.Family {
	case signal.FamilyMode:
		if _, changed := s.sess.ApplyMode(tag); !changed {
			return
		}
		if k, ok := s.sess.TakeModeChange(); ok {
			s.logger.Info("mode changed", "mode", k.String())
			s.metrics.RecordModeChange(string(k.Mode))
			_ = s.sendJSONPriority(protocol.NewMode(string(k.Mode), string(k.Persona)))
		}
	case signal.FamilySignal:
		switch tag.Name {
		case signal.SignalCall:
			s.sess.Conversation().SetFact(state.FactTimeCritical, "true")
			s.spawn(func() { s.escalate(reasonAIRequestCall) })
		case signal.SignalTimer:
			if s.suppressed.Load() {
				s.esc.Cancel()
				return
			}
			s.arm(reasonAIProtocol)
		case signal.SignalSafe:
			s.suppressed.Store(true)
			s.esc.Cancel()
			s.esc.StopWatchdog()
			s.spawn(s.endBySafeWord)
		}
	}
}

// escalate runs the relay. It is safe to call concurrently: the relay's
// call_active gate lets only one through.
func (s *LiveSession) escalate(reason string) {
	ctx, cancel := s.collaboratorContext()
	defer cancel()

	user := s.sess.UserProfile().DisplayName()
	s.sess.UpdateIncidentContext(s.sess.Conversation().EscalationContext(user, reason))

	out, err := s.relay.Trigger(ctx, s.sessionID, s.sess)
	switch {
	case err != nil:
		s.metrics.RecordEscalation(reason, "error")
		s.warnCollaborator("escalation failed", err)
		_ = s.sendJSONPriority(protocol.NewWarning("relay_failed", "could not reach emergency contacts"))
	case out.Skipped:
		s.metrics.RecordEscalation(reason, "skipped")
	default:
		outcome := "live"
		if out.Simulated {
			outcome = "simulated"
		}
		s.metrics.RecordEscalation(reason, outcome)
		s.logger.Info("escalation sent", "reason", reason, "contacts", out.Contacts, "sms", out.SMSSent, "call_sid", out.LiveCallSID)
		_ = s.sendJSONPriority(protocol.NewAlertSent(out.Contacts))
	}
}

// archive saves the transcript. It waits for any in-flight turn so the
// reply that triggered it is included.
func (s *LiveSession) archive(ctx context.Context, trigger string) (evidence.Report, error) {
	report := evidence.Build(s.sessionID, s.sess, s.companion.Memory(), s.now())
	if s.vault == nil {
		err := core.EvidenceError("save", errNoVault)
		s.metrics.RecordEvidence(trigger, err)
		return report, err
	}
	err := s.vault.Save(ctx, report)
	s.metrics.RecordEvidence(trigger, err)
	if err != nil {
		return report, err
	}
	s.logger.Info("evidence archived", "file", report.File, "trigger", trigger)
	return report, nil
}

func (s *LiveSession) endBySafeWord() {
	ctx, cancel := s.collaboratorContext()
	defer cancel()
	report, err := s.archive(ctx, "safe_word")
	if err != nil {
		s.warnCollaborator("evidence archive failed", err)
	} else {
		_ = s.sendJSONPriority(protocol.NewDownload(report.File))
	}
	_ = s.sendJSONPriority(protocol.NewSessionEnded(safeWordEndedMessage))
}

// endSession archives on request and texts the report link to the
// contacts. The connection stays open.
func (s *LiveSession) endSession(legacy bool) {
	ctx, cancel := s.collaboratorContext()
	defer cancel()
	report, err := s.archive(ctx, "end_session")
	if err != nil {
		s.warnCollaborator("evidence archive failed", err)
		_ = s.sendJSONPriority(protocol.NewWarning("evidence_failed", "could not save the incident report"))
		return
	}
	if n := s.relay.SendEvidenceLink(ctx, report.File, s.sess.UserProfile()); n > 0 {
		s.logger.Info("evidence link sent", "contacts", n)
	}
	if legacy {
		_ = s.sendText(protocol.LegacyDownloadPrefix + report.File)
		return
	}
	_ = s.sendJSONPriority(protocol.NewDownload(report.File))
}

// userRequestedCall detects an explicit request to call someone now.
func userRequestedCall(text string) bool {
	t := strings.ToLower(text)
	if !strings.Contains(t, "call") {
		return false
	}
	for _, w := range []string{"contact", "now", "please"} {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
