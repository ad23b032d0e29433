// Package phone bridges a carrier media stream to a companion that briefs
// the emergency contact who answered the live call.
package phone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/companion"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/telephony/twilio"
	"github.com/sanchita-suni/Calyx/pkg/core/voice"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/audio"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/stt"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/tts"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/protocol"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/session"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
)

const (
	defaultSituation = "triggered an emergency alert"
	// mediaChunkBytes is 200ms of 8kHz mu-law.
	mediaChunkBytes = 1600
)

// ErrSessionNotFound is returned by a Resolver that knows nothing about the
// requested session.
var ErrSessionNotFound = errors.New("session not found")

// Conn is the subset of *websocket.Conn a call uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Bridge is the conversation a call belongs to.
type Bridge struct {
	// Session is a phone fork of the user's session.
	Session *state.Session
	// OnEnd runs once when the call ends.
	OnEnd func()
}

// Resolver finds the conversation for the session id carried in the start
// event.
type Resolver func(ctx context.Context, sessionID string) (Bridge, error)

type Config struct {
	Companion       companion.Config
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	TurnQueueSize   int
}

type Dependencies struct {
	Conn     Conn
	Logger   *slog.Logger
	Provider core.Provider
	STT      session.STTProvider
	TTS      tts.Provider
	Intro    *IntroCache
	Resolve  Resolver
	Metrics  *metrics.Metrics
	Pacer    *voice.Pacer
	Config   Config
	Now      func() time.Time
}

// Call is one bridged phone call.
type Call struct {
	conn    Conn
	logger  *slog.Logger
	prov    core.Provider
	stt     session.STTProvider
	tts     tts.Provider
	intro   *IntroCache
	resolve Resolver
	metrics *metrics.Metrics
	pacer   *voice.Pacer
	cfg     Config
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	streamSID string
	sess      *state.Session
	companion *companion.Companion
	onEnd     func()
	endOnce   sync.Once

	sttSession STTStream
	sttFailed  bool

	jobs     chan func(context.Context)
	speaking atomic.Bool
}

// STTStream is an open transcription stream.
type STTStream = session.STTSession

type inboundFrame struct {
	data []byte
	err  error
}

func New(deps Dependencies) (*Call, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pacer == nil {
		deps.Pacer = voice.NewPacer()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 5 * time.Second
	}
	if deps.Config.TurnQueueSize <= 0 {
		deps.Config.TurnQueueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Call{
		conn:    deps.Conn,
		logger:  deps.Logger,
		prov:    deps.Provider,
		stt:     deps.STT,
		tts:     deps.TTS,
		intro:   deps.Intro,
		resolve: deps.Resolve,
		metrics: deps.Metrics,
		pacer:   deps.Pacer,
		cfg:     deps.Config,
		now:     deps.Now,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan func(context.Context), deps.Config.TurnQueueSize),
	}, nil
}

// Cancel hangs up.
func (c *Call) Cancel() {
	if c != nil && c.cancel != nil {
		c.cancel()
	}
}

// Run serves the media stream until the carrier sends stop or the socket
// closes.
func (c *Call) Run() error {
	defer c.cancel()
	start := c.now()
	c.metrics.RecordSessionStart(metrics.ChannelPhone)
	defer func() {
		c.metrics.RecordSessionEnd(metrics.ChannelPhone, "ok", c.now().Sub(start))
	}()
	defer c.end()
	if c.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	}

	g, gctx := errgroup.WithContext(c.ctx)
	readCh := make(chan inboundFrame, 32)
	g.Go(func() error {
		defer close(readCh)
		for {
			_, data, err := c.conn.ReadMessage()
			select {
			case readCh <- inboundFrame{data: data, err: err}:
			case <-gctx.Done():
				return nil
			}
			if err != nil {
				return nil
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case job := <-c.jobs:
				job(gctx)
			}
		}
	})
	g.Go(func() error {
		defer c.cancel()
		defer c.conn.Close()
		return c.loop(gctx, readCh)
	})
	return g.Wait()
}

func (c *Call) loop(ctx context.Context, readCh <-chan inboundFrame) error {
	var transcripts <-chan stt.TranscriptDelta
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsUnexpectedCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("carrier connection lost", "error", frame.err)
				}
				return nil
			}
			ev, err := protocol.DecodeTwilioEvent(frame.data)
			if err != nil {
				c.metrics.RecordRejected(metrics.ChannelPhone, "bad_request")
				c.logger.Debug("ignoring malformed media event", "error", err)
				continue
			}
			switch ev.Event {
			case protocol.TwilioEventStart:
				c.handleStart(ctx, ev)
			case protocol.TwilioEventMedia:
				if ch := c.handleMedia(ctx, ev); ch != nil {
					transcripts = ch
				}
			case protocol.TwilioEventStop:
				c.logger.Info("call stopped", "stream_sid", c.streamSID)
				return nil
			}
		case delta, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			if delta.IsFinal {
				c.handleTranscript(delta.Text)
			}
		}
	}
}

func (c *Call) handleStart(ctx context.Context, ev protocol.TwilioEvent) {
	if c.sess != nil {
		return
	}
	c.streamSID = ev.Start.StreamSID
	sessionID := ev.SessionID(twilio.StreamParameterSessionID)
	c.logger = c.logger.With("stream_sid", c.streamSID, "parent_session_id", sessionID)

	var b Bridge
	if c.resolve != nil {
		var err error
		b, err = c.resolve(ctx, sessionID)
		if err != nil {
			c.logger.Warn("call session unavailable, briefing without history", "error", err)
		}
	}
	if b.Session == nil {
		b.Session = state.NewSession(nil).Fork()
	}
	c.sess = b.Session
	c.onEnd = b.OnEnd

	contact := c.sess.Conversation().FirstResponder()
	c.companion = companion.NewPhone(c.prov, c.sess, c.cfg.Companion, contact, c.logger)
	c.logger.Info("call started", "contact", contact)
	c.enqueue(c.greet)
}

func (c *Call) handleMedia(ctx context.Context, ev protocol.TwilioEvent) <-chan stt.TranscriptDelta {
	payload, err := ev.Payload()
	if err != nil {
		c.metrics.RecordRejected(metrics.ChannelPhone, "bad_request")
		return nil
	}
	c.metrics.RecordAudio(metrics.ChannelPhone, "in", len(payload))
	var opened <-chan stt.TranscriptDelta
	if c.sttSession == nil && !c.sttFailed && c.stt != nil {
		s, err := c.stt.NewSession(ctx, stt.PhoneOptions())
		if err != nil {
			c.sttFailed = true
			err = core.TranscriptionError("connect", err)
			c.metrics.RecordFailure(metrics.ChannelPhone, string(core.KindOf(err)))
			c.logger.Warn("call transcription unavailable", "error", err)
			return nil
		}
		c.sttSession = s
		opened = s.Transcripts()
	}
	if c.sttSession != nil {
		if err := c.sttSession.SendAudio(audio.DecodeULaw(payload)); err != nil {
			c.logger.Debug("call audio forward failed", "error", err)
		}
	}
	return opened
}

func (c *Call) handleTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" || c.companion == nil {
		return
	}
	c.logger.Info("contact said", "text", text)
	if c.speaking.Load() {
		c.sess.SignalInterruption()
		_ = c.writeJSON(protocol.NewTwilioClear(c.streamSID))
	}
	c.enqueue(func(ctx context.Context) { c.respond(ctx, text) })
}

func (c *Call) enqueue(job func(context.Context)) {
	select {
	case c.jobs <- job:
	default:
		c.logger.Warn("call turn queue full, dropping input")
	}
}

// greet plays the intro and then the details line.
func (c *Call) greet(ctx context.Context) {
	c.speaking.Store(true)
	defer c.speaking.Store(false)
	if clip, ok := c.intro.Clip(); ok {
		if err := c.sendAudio(clip); err != nil {
			return
		}
		_ = c.pacer.Gap(ctx, voice.PhoneGap)
	} else {
		c.say(ctx, QuickIntroText)
	}
	c.say(ctx, DetailsLine(c.sess))
}

// maxSituationRunes caps the situation read out in the details line.
const maxSituationRunes = 100

// DetailsLine tells the contact who needs help and why.
func DetailsLine(sess *state.Session) string {
	situation := strings.TrimSpace(sess.IncidentContext())
	if situation == "" {
		situation = defaultSituation
	}
	if r := []rune(situation); len(r) > maxSituationRunes {
		situation = string(r[:maxSituationRunes])
	}
	user := sess.UserProfile().DisplayName()
	return fmt.Sprintf("%s needs your help. They %s. I've sent you a text with their location. How can I help you help them?", user, situation)
}

func (c *Call) respond(ctx context.Context, text string) {
	c.sess.ResetInterruption()
	c.speaking.Store(true)
	defer c.speaking.Store(false)

	items := make(chan voice.Item, 16)
	var r companion.Reply
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(items)
		adapter := voice.NewAdapter(voice.PhoneMinSegmentChars)
		push := func(batch []voice.Item) {
			for _, it := range batch {
				select {
				case items <- it:
				case <-gctx.Done():
					return
				}
			}
		}
		r = c.companion.Respond(gctx, text, false, func(ev signal.Event) {
			push(adapter.Feed(ev))
		})
		push(adapter.Finish())
		return nil
	})
	g.Go(func() error {
		for it := range items {
			switch it.Kind {
			case voice.ItemSpeech:
				c.say(gctx, it.Text)
			case voice.ItemMarker:
				c.logger.Debug("call directive ignored", "tag", it.Tag.Name)
			}
		}
		return nil
	})
	_ = g.Wait()

	if r.Err != nil {
		c.metrics.RecordFailure(metrics.ChannelPhone, string(core.KindOf(r.Err)))
	}
	c.metrics.RecordTurn(metrics.ChannelPhone, "voice", r.Fallback, r.FirstToken)
}

// say synthesizes one sentence as telephone audio and leaves a short gap
// after it. Synthesis failures skip the sentence.
func (c *Call) say(ctx context.Context, text string) {
	if c.tts == nil || c.sess.Interrupted() || ctx.Err() != nil {
		return
	}
	syn, err := c.tts.Synthesize(ctx, text, tts.PhoneOptions())
	if err != nil {
		err = core.SynthesisError("phone", err)
		c.metrics.RecordFailure(metrics.ChannelPhone, string(core.KindOf(err)))
		c.logger.Warn("call synthesis failed", "error", err)
		return
	}
	if c.sess.Interrupted() {
		return
	}
	if err := c.sendAudio(audio.EncodeULaw(audio.StripWAVHeader(syn.Audio))); err != nil {
		return
	}
	_ = c.pacer.Gap(ctx, voice.PhoneGap)
}

func (c *Call) sendAudio(ulaw []byte) error {
	for off := 0; off < len(ulaw); off += mediaChunkBytes {
		if c.sess.Interrupted() {
			return nil
		}
		end := min(off+mediaChunkBytes, len(ulaw))
		if err := c.writeJSON(protocol.NewTwilioMedia(c.streamSID, ulaw[off:end])); err != nil {
			return err
		}
		c.metrics.RecordAudio(metrics.ChannelPhone, "out", end-off)
	}
	return nil
}

func (c *Call) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Call) end() {
	c.endOnce.Do(func() {
		if c.sttSession != nil {
			_ = c.sttSession.Close()
		}
		if c.onEnd != nil {
			c.onEnd()
		}
	})
}
