// Package companion drives one conversational turn against the completion
// collaborator. It owns the model-facing memory, the safe word check and the
// fallback reply; control directives are surfaced to the caller as parser
// events in stream order.
package companion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

const (
	// FallbackReply is spoken when the completion collaborator fails.
	FallbackReply = "I'm here. Tell me what's happening."

	// DefaultSafeWord ends a session when the user says it.
	DefaultSafeWord = "blueberries"

	DefaultTemperature    = 0.35
	DefaultMaxTokens      = 150
	DefaultMemoryMessages = 30

	textPrefix    = "[TEXT] "
	contactPrefix = "[CONTACT]: "
)

// Config tunes completions.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// MemoryMessages bounds the request to the system prompt plus the most
	// recent MemoryMessages-1 turns.
	MemoryMessages int
	SafeWord       string
	// Timeout bounds one completion. Zero means no extra bound.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MemoryMessages <= 1 {
		c.MemoryMessages = DefaultMemoryMessages
	}
	if strings.TrimSpace(c.SafeWord) == "" {
		c.SafeWord = DefaultSafeWord
	}
	return c
}

// Reply summarizes a finished turn.
type Reply struct {
	// Text is the assistant reply with directives removed.
	Text string
	// Signals lists every directive in stream order.
	Signals []signal.Tag
	// FirstToken is the time to the first streamed fragment.
	FirstToken time.Duration
	// Fallback is true when the collaborator failed and FallbackReply was used.
	Fallback bool
	// SafeWord is true when this turn verified the safe word.
	SafeWord bool
	Err      error
}

// Companion is one persona bound to one session. Respond calls are
// serialized.
type Companion struct {
	provider core.Provider
	sess     *state.Session
	cfg      Config
	logger   *slog.Logger
	phone    bool
	prompt   func() string
	now      func() time.Time

	mu     sync.Mutex
	memory []core.ChatMessage
}

// New builds the user-facing persona. The system prompt is rendered per turn
// so a late user_profile still reaches the model.
func New(provider core.Provider, sess *state.Session, cfg Config, logger *slog.Logger) *Companion {
	c := newCompanion(provider, sess, cfg, logger)
	c.prompt = func() string {
		return BrowserPrompt(sess.UserProfile().DisplayName(), c.cfg.SafeWord)
	}
	return c
}

// NewPhone builds the persona that speaks with an emergency contact. sess
// should be a fork of the user's session; its prompt is frozen at creation.
func NewPhone(provider core.Provider, sess *state.Session, cfg Config, contactName string, logger *slog.Logger) *Companion {
	c := newCompanion(provider, sess, cfg, logger)
	c.phone = true
	prompt := PhonePrompt(sess, contactName)
	c.prompt = func() string { return prompt }
	return c
}

func newCompanion(provider core.Provider, sess *state.Session, cfg Config, logger *slog.Logger) *Companion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Companion{
		provider: provider,
		sess:     sess,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// SafeWord returns the configured safe word.
func (c *Companion) SafeWord() string { return c.cfg.SafeWord }

// Respond runs one turn. emit receives parser events as they are produced;
// a safe word hit is emitted first as Signal(SIGNAL:SAFE). Respond never
// fails: collaborator errors yield FallbackReply as a text event, and the
// error is reported in Reply.Err.
func (c *Companion) Respond(ctx context.Context, input string, textMode bool, emit func(signal.Event)) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	if emit == nil {
		emit = func(signal.Event) {}
	}

	start := c.now()
	conv := c.sess.Conversation()
	var reply Reply

	if c.ContainsSafeWord(input) && conv.VerifySafeWord() {
		reply.SafeWord = true
		tag := signal.Tag{Family: signal.FamilySignal, Name: signal.SignalSafe}
		reply.Signals = append(reply.Signals, tag)
		emit(signal.Signal(tag))
		c.logger.Info("safe word verified")
	}

	formatted := input
	switch {
	case c.phone:
		formatted = contactPrefix + input
	case textMode:
		formatted = textPrefix + input
	}
	if !c.phone {
		conv.Append(state.RoleUser, input)
	}
	c.remember(core.ChatMessage{Role: core.ChatUser, Content: formatted})

	raw, err := c.stream(ctx, start, &reply, emit)
	if err != nil {
		reply.Err = err
		reply.Fallback = true
		c.logger.Warn("completion failed", "error", err, "kind", core.KindOf(err))
		emit(signal.Text(FallbackReply))
		if raw == "" {
			raw = FallbackReply
		} else {
			raw += " " + FallbackReply
		}
		reply.Text = strings.TrimSpace(signal.StripTags(raw))
	}

	c.remember(core.ChatMessage{Role: core.ChatAssistant, Content: raw})
	if !c.phone {
		conv.Append(state.RoleAssistant, reply.Text)
		conv.Analyze(input, c.sess.UserProfile().DisplayName())
	}
	c.logger.Debug("turn complete",
		"first_token_ms", reply.FirstToken.Milliseconds(),
		"total_ms", c.now().Sub(start).Milliseconds(),
		"signals", len(reply.Signals),
		"fallback", reply.Fallback,
	)
	return reply
}

func (c *Companion) stream(ctx context.Context, start time.Time, reply *Reply, emit func(signal.Event)) (string, error) {
	if c.provider == nil {
		return "", core.CompletionError("stream", errors.New("no completion provider configured"))
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := &core.CompletionRequest{
		Model:       c.cfg.Model,
		System:      c.prompt(),
		Messages:    append([]core.ChatMessage(nil), c.memory...),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	ts, err := c.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	defer ts.Close()

	parser := signal.NewParser()
	var raw, clean strings.Builder
	handle := func(events []signal.Event) {
		for _, ev := range events {
			switch ev.Kind {
			case signal.EventText:
				clean.WriteString(ev.Text)
			case signal.EventSignal:
				reply.Signals = append(reply.Signals, ev.Tag)
			}
			emit(ev)
		}
	}

	first := true
	for {
		frag, err := ts.Next()
		if frag != "" {
			if first {
				first = false
				reply.FirstToken = c.now().Sub(start)
				c.sess.AddLatencySample(int(reply.FirstToken.Milliseconds()))
			}
			raw.WriteString(frag)
			handle(parser.Feed(frag))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			handle(parser.Flush())
			reply.Text = strings.TrimSpace(clean.String())
			return raw.String(), err
		}
	}
	handle(parser.Flush())
	reply.Text = strings.TrimSpace(clean.String())
	return raw.String(), nil
}

// ContainsSafeWord reports a case-insensitive safe word match.
func (c *Companion) ContainsSafeWord(input string) bool {
	return strings.Contains(strings.ToLower(input), strings.ToLower(c.cfg.SafeWord))
}

func (c *Companion) remember(m core.ChatMessage) {
	c.memory = append(c.memory, m)
	if keep := c.cfg.MemoryMessages - 1; len(c.memory) > keep {
		c.memory = append(c.memory[:0], c.memory[len(c.memory)-keep:]...)
	}
}

// Memory returns the model-facing history, excluding the system prompt.
// Assistant entries keep their directives.
func (c *Companion) Memory() []core.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.ChatMessage(nil), c.memory...)
}

// Transcript renders the conversation context as "USER: ..." / "CALYX: ..."
// lines.
func (c *Companion) Transcript() string {
	var b strings.Builder
	for _, m := range c.sess.Conversation().Messages() {
		who := "CALYX"
		if m.Role == state.RoleUser {
			who = "USER"
		}
		b.WriteString(who)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
