// Package session runs the browser side of a Calyx conversation: one duplex
// websocket carrying microphone audio and JSON commands in, and synthesized
// speech plus state notifications out.
package session

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
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/escalation"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/mode"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
	"github.com/sanchita-suni/Calyx/pkg/core/directory"
	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
	"github.com/sanchita-suni/Calyx/pkg/core/relay"
	"github.com/sanchita-suni/Calyx/pkg/core/voice"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/stt"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/tts"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/protocol"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
)

const (
	maxCanceledTurnIDs        = 64
	outboundPriorityQueueSize = 16
	collaboratorTimeout       = 15 * time.Second
)

var (
	errBackpressure = errors.New("live outbound backpressure")
	errNoVault      = errors.New("no evidence vault configured")
)

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

type Config struct {
	Companion  companion.Config
	Escalation escalation.Config

	MaxMessageBytes   int64
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	TurnTimeout       time.Duration
	OutboundQueueSize int
	TurnQueueSize     int

	// Inbound microphone budget. Zero disables the limit.
	MaxAudioFPS            int
	MaxAudioBytesPerSecond int64
	AudioBurstSeconds      int
}

type Dependencies struct {
	Conn      Conn
	Logger    *slog.Logger
	Provider  core.Provider
	STT       STTProvider
	TTS       tts.Provider
	Relay     *relay.Guardian
	Vault     evidence.Vault
	Directory directory.Directory
	Metrics   *metrics.Metrics
	Modes     *mode.Table
	Clock     escalation.Clock
	Pacer     *voice.Pacer
	SessionID string
	Config    Config
	Now       func() time.Time
}

// LiveSession is one browser connection. The event loop owns inbound
// commands and timer reactions; turns run one at a time on a worker per
// input kind, serialized by the companion.
type LiveSession struct {
	conn      Conn
	logger    *slog.Logger
	stt       STTProvider
	tts       tts.Provider
	relay     *relay.Guardian
	vault     evidence.Vault
	directory directory.Directory
	metrics   *metrics.Metrics
	pacer     *voice.Pacer
	sessionID string
	cfg       Config
	now       func() time.Time
	startTime time.Time

	sess      *state.Session
	companion *companion.Companion
	esc       *escalation.Manager

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	fireCh  chan escalation.Fire
	voiceQ  chan string
	textQ   chan string
	limiter *AudioLimiter

	// suppressed is set by an explicit cancel and cleared when a new turn
	// or countdown starts. While set, TIMER directives and the watchdog do
	// not arm anything.
	suppressed atomic.Bool

	turnCounter atomic.Int64
	activeTurn  atomic.Value // string
	canceled    atomic.Value // canceledTurnState

	tasks sync.WaitGroup
}

type canceledTurnState struct {
	set   map[string]struct{}
	order []string
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if strings.TrimSpace(deps.SessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 256
	}
	if deps.Config.TurnQueueSize <= 0 {
		deps.Config.TurnQueueSize = 32
	}
	if deps.Config.AudioBurstSeconds <= 0 {
		deps.Config.AudioBurstSeconds = 2
	}
	if deps.Pacer == nil {
		deps.Pacer = voice.NewPacer()
	}
	if deps.Relay == nil {
		deps.Relay = relay.New(nil, relay.Config{}, deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := deps.Logger.With("session_id", deps.SessionID)
	sess := state.NewSession(deps.Modes)
	s := &LiveSession{
		conn:             deps.Conn,
		logger:           logger,
		stt:              deps.STT,
		tts:              deps.TTS,
		relay:            deps.Relay,
		vault:            deps.Vault,
		directory:        deps.Directory,
		metrics:          deps.Metrics,
		pacer:            deps.Pacer,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		now:              deps.Now,
		startTime:        deps.Now(),
		sess:             sess,
		companion:        companion.New(deps.Provider, sess, deps.Config.Companion, logger),
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		fireCh:           make(chan escalation.Fire, 4),
		voiceQ:           make(chan string, deps.Config.TurnQueueSize),
		textQ:            make(chan string, deps.Config.TurnQueueSize),
		limiter:          NewAudioLimiter(deps.Now, deps.Config.MaxAudioFPS, deps.Config.MaxAudioBytesPerSecond, deps.Config.AudioBurstSeconds),
	}
	s.activeTurn.Store("")
	s.canceled.Store(canceledTurnState{set: make(map[string]struct{})})
	s.esc = escalation.NewManager(deps.Config.Escalation, deps.Clock, escalation.Hooks{
		OnStarted:   s.onCountdownStarted,
		OnCancelled: s.onCountdownCancelled,
		OnFire:      s.onFire,
	})
	return s, nil
}

// SessionID returns the connection's identifier.
func (s *LiveSession) SessionID() string { return s.sessionID }

// State exposes the session record, mainly for tests and the phone bridge.
func (s *LiveSession) State() *state.Session { return s.sess }

// Fork returns an independent copy of the session for a telephone
// sub-session.
func (s *LiveSession) Fork() *state.Session { return s.sess.Fork() }

// CallEnded clears call_active once the bridged call hangs up, so a later
// escalation can be armed.
func (s *LiveSession) CallEnded() {
	s.sess.EndCall()
	s.logger.Info("bridged call ended")
}

// Run serves the connection until the client disconnects or Cancel is
// called. Collaborator failures never end it.
func (s *LiveSession) Run() error {
	defer s.cancel()
	s.metrics.RecordSessionStart(metrics.ChannelBrowser)
	status := "ok"
	defer func() {
		s.metrics.RecordSessionEnd(metrics.ChannelBrowser, status, s.now().Sub(s.startTime))
	}()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	var (
		sttSession  STTSession
		transcripts <-chan stt.TranscriptDelta
	)
	if s.stt != nil {
		sess, err := s.stt.NewSession(s.ctx, stt.BrowserOptions())
		if err != nil {
			s.degrade(core.TranscriptionError("connect", err))
		} else {
			sttSession = sess
			transcripts = sess.Transcripts()
			defer sttSession.Close()
		}
	} else {
		s.logger.Warn("no transcription provider, text mode only")
	}

	s.esc.ResetWatchdog()
	defer s.esc.Close()

	g, gctx := errgroup.WithContext(s.ctx)
	readCh := make(chan inboundFrame, 64)

	g.Go(func() error {
		s.readLoop(gctx, readCh)
		return nil
	})
	g.Go(func() error {
		w := outboundWriter{
			ws:           s.conn,
			ctx:          gctx,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
			priority:     s.outboundPriority,
			normal:       s.outboundNormal,
			isCanceled:   s.isTurnCanceled,
		}
		return w.Run()
	})
	g.Go(func() error { return s.turnWorker(gctx, s.voiceQ, s.runVoiceTurn) })
	g.Go(func() error { return s.turnWorker(gctx, s.textQ, s.runTextTurn) })
	g.Go(func() error { return s.loop(gctx, readCh, transcripts, sttSession) })

	err := g.Wait()
	s.esc.Close()
	s.tasks.Wait()
	if err != nil {
		status = "error"
		s.logger.Warn("session ended with error", "error", err)
		return err
	}
	s.logger.Info("session closed")
	return nil
}

// Cancel ends the session.
func (s *LiveSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// SendWarning queues a warning for the client.
func (s *LiveSession) SendWarning(code, message string) error {
	if s == nil {
		return nil
	}
	return s.sendJSON(protocol.NewWarning(code, message))
}

func (s *LiveSession) loop(ctx context.Context, readCh <-chan inboundFrame, transcripts <-chan stt.TranscriptDelta, sttSession STTSession) error {
	defer s.cancel()
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
					s.logger.Info("client connection lost", "error", frame.err)
				}
				return nil
			}
			s.handleFrame(ctx, frame, sttSession)
		case delta, ok := <-transcripts:
			if !ok {
				transcripts = nil
				s.logger.Warn("transcription stream ended, text mode only")
				continue
			}
			if delta.IsFinal {
				s.handleTranscript(ctx, delta.Text)
			}
		case f := <-s.fireCh:
			s.handleFire(ctx, f)
		}
	}
}

func (s *LiveSession) readLoop(ctx context.Context, out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *LiveSession) handleFrame(ctx context.Context, frame inboundFrame, sttSession STTSession) {
	if frame.messageType == websocket.BinaryMessage {
		if sttSession == nil || s.sess.Silent() {
			return
		}
		if !s.limiter.Allow(len(frame.data)) {
			s.metrics.RecordRejected(metrics.ChannelBrowser, "audio_rate")
			return
		}
		s.metrics.RecordAudio(metrics.ChannelBrowser, "in", len(frame.data))
		if err := sttSession.SendAudio(frame.data); err != nil {
			s.logger.Debug("audio forward failed", "error", err)
		}
		return
	}

	legacy := false
	msg, err := protocol.DecodeClientMessage(frame.data)
	if err != nil {
		cmd, ok := protocol.DecodeLegacyCommand(string(frame.data))
		if !ok {
			code := "bad_request"
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				code = de.Code
			}
			s.metrics.RecordRejected(metrics.ChannelBrowser, code)
			s.logger.Debug("ignoring malformed command", "error", err)
			return
		}
		msg, legacy = cmd, true
	}

	switch m := msg.(type) {
	case protocol.ClientUserProfile:
		p := m.Profile()
		s.sess.SetUserProfile(p)
		s.logger.Info("profile updated", "contacts", len(p.Contacts))
		if s.directory != nil {
			if err := s.directory.PutProfile(ctx, s.sessionID, p); err != nil {
				s.warnCollaborator("directory profile write failed", err)
			}
		}
	case protocol.ClientLocation:
		loc := m.Location
		loc.UpdatedAt = s.now()
		s.sess.SetLocation(loc)
		if s.directory != nil {
			if err := s.directory.PutLocation(ctx, s.sessionID, loc); err != nil {
				s.warnCollaborator("directory location write failed", err)
			}
		}
	case protocol.ClientSilentMode:
		s.sess.SetSilent(m.Enabled)
		s.logger.Info("silent mode", "enabled", m.Enabled)
	case protocol.ClientTextMessage:
		s.esc.ResetWatchdog()
		if containsFold(m.Content, "cancel") {
			s.cancelCountdown()
		}
		s.enqueue(s.textQ, m.Content, "text")
	case protocol.ClientCancelTimer:
		s.cancelCountdown()
	case protocol.ClientSOS:
		s.logger.Info("sos pressed")
		s.arm(escalation.ReasonSOS)
	case protocol.ClientEndSession:
		s.spawn(func() { s.endSession(legacy) })
	}
}

func (s *LiveSession) handleTranscript(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.esc.ResetWatchdog()
	s.interrupt()
	if containsFold(text, "end session") {
		s.spawn(func() { s.endSession(false) })
	}
	s.enqueue(s.voiceQ, text, "voice")
}

// interrupt stops delivery of the active voice turn. The turn's completion
// keeps running and is still recorded.
func (s *LiveSession) interrupt() {
	s.sess.SignalInterruption()
	if id := s.currentTurn(); id != "" {
		s.cancelTurnAudio(id)
		_ = s.sendJSONPriority(protocol.NewClear())
	}
}

func (s *LiveSession) enqueue(q chan<- string, text, kind string) {
	select {
	case q <- text:
	default:
		s.logger.Warn("turn queue full, dropping input", "kind", kind)
		s.metrics.RecordRejected(metrics.ChannelBrowser, "queue_full")
	}
}

func (s *LiveSession) turnWorker(ctx context.Context, q <-chan string, run func(context.Context, string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-q:
			run(ctx, text)
		}
	}
}

func (s *LiveSession) arm(reason string) {
	s.suppressed.Store(false)
	s.esc.Arm(reason)
}

func (s *LiveSession) cancelCountdown() {
	s.suppressed.Store(true)
	s.esc.Cancel()
}

func (s *LiveSession) onCountdownStarted(d time.Duration, reason string) {
	s.metrics.RecordCountdown("started")
	s.logger.Info("escalation countdown started", "seconds", int(d.Seconds()), "reason", reason)
	_ = s.sendJSONPriority(protocol.NewTimerStarted(int(d.Round(time.Second)/time.Second), ""))
}

func (s *LiveSession) onCountdownCancelled(reason string) {
	s.metrics.RecordCountdown("cancelled")
	s.logger.Info("escalation countdown cancelled", "reason", reason)
	_ = s.sendJSONPriority(protocol.NewTimerCancelled())
}

func (s *LiveSession) onFire(f escalation.Fire) {
	select {
	case s.fireCh <- f:
	case <-s.ctx.Done():
	}
}

func (s *LiveSession) handleFire(ctx context.Context, f escalation.Fire) {
	if f.Source == escalation.SourceWatchdog {
		if s.suppressed.Load() || s.sess.CallActive() {
			s.logger.Debug("inactivity watchdog ignored", "suppressed", s.suppressed.Load(), "call_active", s.sess.CallActive())
			return
		}
		s.logger.Info("no response detected, escalating")
	} else {
		s.metrics.RecordCountdown("fired")
	}
	s.escalate(f.Reason)
}

// spawn runs f as a tracked background task. Run waits for every task
// before returning.
func (s *LiveSession) spawn(f func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		f()
	}()
}

// collaboratorContext outlives the connection: an escalation or archive
// that has started finishes even if the client disconnects.
func (s *LiveSession) collaboratorContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.ctx), collaboratorTimeout)
}

func (s *LiveSession) degrade(err error) {
	s.metrics.RecordFailure(metrics.ChannelBrowser, string(core.KindOf(err)))
	s.logger.Warn("collaborator unavailable", "error", err, "kind", core.KindOf(err), "outcome", core.OutcomeOf(err))
	_ = s.sendWarning("transcription_unavailable", "voice input unavailable, use text messages")
}

func (s *LiveSession) warnCollaborator(msg string, err error) {
	s.metrics.RecordFailure(metrics.ChannelBrowser, string(core.KindOf(err)))
	s.logger.Warn(msg, "error", err, "kind", core.KindOf(err), "outcome", core.OutcomeOf(err))
}

func (s *LiveSession) sendWarning(code, message string) error {
	return s.sendJSON(protocol.NewWarning(code, message))
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{text: payload})
}

func (s *LiveSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{text: payload})
}

func (s *LiveSession) sendText(text string) error {
	return s.enqueuePriority(outboundFrame{text: []byte(text)})
}

func (s *LiveSession) sendAudio(turnID string, chunk []byte) error {
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	if err := s.enqueueNormal(outboundFrame{turnID: turnID, binary: buf}); err != nil {
		return err
	}
	s.metrics.RecordAudio(metrics.ChannelBrowser, "out", len(buf))
	return nil
}

func (s *LiveSession) enqueueNormal(frame outboundFrame) error {
	if frame.isAudio() && s.isTurnCanceled(frame.turnID) {
		return nil
	}
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

// enqueuePriority never drops control messages silently: if the queue is
// full it waits briefly for the writer.
func (s *LiveSession) enqueuePriority(frame outboundFrame) error {
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
	}
	timer := time.NewTimer(250 * time.Millisecond)
	defer timer.Stop()
	select {
	case s.outboundPriority <- frame:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-timer.C:
		return errBackpressure
	}
}

func (s *LiveSession) nextTurnID() string {
	return fmt.Sprintf("t_%d", s.turnCounter.Add(1))
}

func (s *LiveSession) currentTurn() string {
	id, _ := s.activeTurn.Load().(string)
	return id
}

func (s *LiveSession) cancelTurnAudio(turnID string) {
	if turnID == "" {
		return
	}
	st, _ := s.canceled.Load().(canceledTurnState)
	if _, exists := st.set[turnID]; exists {
		return
	}
	next := canceledTurnState{set: make(map[string]struct{}, len(st.set)+1)}
	for k := range st.set {
		next.set[k] = struct{}{}
	}
	next.order = append(append(next.order, st.order...), turnID)
	next.set[turnID] = struct{}{}
	for len(next.order) > maxCanceledTurnIDs {
		delete(next.set, next.order[0])
		next.order = next.order[1:]
	}
	s.canceled.Store(next)
}

func (s *LiveSession) isTurnCanceled(turnID string) bool {
	if turnID == "" {
		return false
	}
	st, _ := s.canceled.Load().(canceledTurnState)
	_, ok := st.set[turnID]
	return ok
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
