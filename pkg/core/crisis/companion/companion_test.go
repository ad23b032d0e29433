package companion

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

type stubStream struct {
	frags []string
	err   error
}

func (s *stubStream) Next() (string, error) {
	if len(s.frags) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, nil
}

func (s *stubStream) Close() error { return nil }

type stubProvider struct {
	mu       sync.Mutex
	replies  [][]string
	streamEr error
	openErr  error
	requests []*core.CompletionRequest
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) StreamCompletion(_ context.Context, req *core.CompletionRequest) (core.TextStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.openErr != nil {
		return nil, p.openErr
	}
	var frags []string
	if len(p.replies) > 0 {
		frags, p.replies = p.replies[0], p.replies[1:]
	}
	return &stubStream{frags: frags, err: p.streamEr}, nil
}

type collector struct {
	events []signal.Event
}

func (c *collector) emit(ev signal.Event) { c.events = append(c.events, ev) }

func (c *collector) text() string {
	var b strings.Builder
	for _, ev := range c.events {
		if ev.Kind == signal.EventText {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func newSession() *state.Session {
	s := state.NewSession(nil)
	s.SetUserProfile(state.UserProfile{Name: "Asha"})
	return s
}

func TestRespond_StreamsEventsInOrder(t *testing.T) {
	p := &stubProvider{replies: [][]string{{"I will [MOD", "E:CALM]let's ", "breathe."}}}
	sess := newSession()
	c := New(p, sess, Config{Model: "m"}, nil)

	col := &collector{}
	r := c.Respond(context.Background(), "I can't breathe", false, col.emit)

	require.NoError(t, r.Err)
	assert.Equal(t, "I will let's breathe.", r.Text)
	require.Len(t, r.Signals, 1)
	assert.True(t, r.Signals[0].Is(signal.FamilyMode, signal.ModeCalm))
	assert.Equal(t, "I will let's breathe.", col.text())

	// The signal precedes the text that follows it.
	var kinds []signal.EventKind
	for _, ev := range col.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, signal.EventText, kinds[0])
	assert.Contains(t, kinds, signal.EventSignal)

	msgs := sess.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, state.RoleUser, msgs[0].Role)
	assert.Equal(t, "I will let's breathe.", msgs[1].Text)

	mem := c.Memory()
	require.Len(t, mem, 2)
	assert.Equal(t, "I will [MODE:CALM]let's breathe.", mem[1].Content)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.Contains(t, req.System, "The user's name is Asha")
	assert.Contains(t, req.System, `"blueberries"`)
}

func TestRespond_TextModePrefix(t *testing.T) {
	p := &stubProvider{replies: [][]string{{"ok."}}}
	sess := newSession()
	c := New(p, sess, Config{}, nil)

	c.Respond(context.Background(), "help", true, nil)
	assert.Equal(t, "[TEXT] help", c.Memory()[0].Content)
	assert.Equal(t, "help", sess.Conversation().Messages()[0].Text)
}

func TestRespond_SafeWordVerifiedOnce(t *testing.T) {
	p := &stubProvider{replies: [][]string{{"Glad."}, {"Okay."}}}
	sess := newSession()
	c := New(p, sess, Config{}, nil)

	col := &collector{}
	r := c.Respond(context.Background(), "BlueBerries, I'm safe", false, col.emit)
	require.True(t, r.SafeWord)
	require.NotEmpty(t, col.events)
	first := col.events[0]
	assert.Equal(t, signal.EventSignal, first.Kind)
	assert.True(t, first.Tag.Is(signal.FamilySignal, signal.SignalSafe))

	col = &collector{}
	r = c.Respond(context.Background(), "blueberries again", false, col.emit)
	assert.False(t, r.SafeWord)
	for _, ev := range col.events {
		assert.NotEqual(t, signal.EventSignal, ev.Kind)
	}
	assert.True(t, sess.Conversation().SafeWordVerified())
}

func TestRespond_FallbackOnOpenError(t *testing.T) {
	p := &stubProvider{openErr: core.CompletionError("groq.stream", errors.New("boom"))}
	sess := newSession()
	c := New(p, sess, Config{}, nil)

	col := &collector{}
	r := c.Respond(context.Background(), "hello?", false, col.emit)

	assert.True(t, r.Fallback)
	require.Error(t, r.Err)
	assert.Equal(t, FallbackReply, r.Text)
	assert.Equal(t, FallbackReply, col.text())

	msgs := sess.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, FallbackReply, msgs[1].Text)
	assert.Equal(t, FallbackReply, c.Memory()[1].Content)
}

func TestRespond_FallbackAfterPartialStream(t *testing.T) {
	p := &stubProvider{replies: [][]string{{"Stay "}}, streamEr: errors.New("reset")}
	c := New(p, newSession(), Config{}, nil)

	col := &collector{}
	r := c.Respond(context.Background(), "hi", false, col.emit)
	assert.True(t, r.Fallback)
	assert.Equal(t, "Stay "+FallbackReply, col.text())
	assert.Equal(t, "Stay  "+FallbackReply, r.Text)
}

func TestRespond_NoProvider(t *testing.T) {
	c := New(nil, newSession(), Config{}, nil)
	r := c.Respond(context.Background(), "hi", false, nil)
	assert.True(t, r.Fallback)
	assert.Equal(t, core.ErrCompletion, core.KindOf(r.Err))
}

func TestRespond_MemoryIsBounded(t *testing.T) {
	p := &stubProvider{}
	for i := 0; i < 40; i++ {
		p.replies = append(p.replies, []string{"ok."})
	}
	c := New(p, newSession(), Config{MemoryMessages: 5}, nil)

	for i := 0; i < 10; i++ {
		c.Respond(context.Background(), "msg", false, nil)
	}
	assert.Len(t, c.Memory(), 4)
	last := p.requests[len(p.requests)-1]
	assert.LessOrEqual(t, len(last.Messages), 4)
	assert.Equal(t, core.ChatUser, last.Messages[len(last.Messages)-1].Role)
}

func TestRespond_RecordsFirstTokenLatency(t *testing.T) {
	p := &stubProvider{replies: [][]string{{"a.", "b."}}}
	sess := newSession()
	c := New(p, sess, Config{}, nil)

	base := time.Unix(0, 0)
	calls := 0
	c.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 40 * time.Millisecond)
	}
	r := c.Respond(context.Background(), "hi", false, nil)
	assert.Equal(t, 40*time.Millisecond, r.FirstToken)
	assert.Equal(t, 40, sess.AverageLatency())
}

func TestRespond_AnalyzesBrowserTurns(t *testing.T) {
	p := &stubProvider{replies: [][]string{{"Lock the door."}}}
	sess := newSession()
	c := New(p, sess, Config{}, nil)

	c.Respond(context.Background(), "someone broke in, an intruder", false, nil)
	assert.Equal(t, "HOME_INTRUSION", sess.Conversation().Scenario())
	assert.Equal(t, 8, sess.Conversation().Threat())
}

func TestPhone_DoesNotTouchConversation(t *testing.T) {
	parent := newSession()
	parent.Conversation().Append(state.RoleUser, "can I order a large pizza")
	parent.SetLocation(state.Location{Lat: 12.5, Lng: 77.25})
	child := parent.Fork()

	p := &stubProvider{replies: [][]string{{"She asked for help."}}}
	c := NewPhone(p, child, Config{}, "Ravi", nil)

	r := c.Respond(context.Background(), "what happened?", false, nil)
	require.NoError(t, r.Err)
	assert.Equal(t, "[CONTACT]: what happened?", c.Memory()[0].Content)
	assert.Len(t, child.Conversation().Messages(), 1)

	sys := p.requests[0].System
	assert.Contains(t, sys, "speaking to Ravi on the phone")
	assert.Contains(t, sys, "USER: can I order a large pizza")
	assert.Contains(t, sys, "COVERT DISTRESS SIGNAL DETECTED")
	assert.Contains(t, sys, "GPS coordinates: 12.5, 77.25\nMap: https://maps.google.com/?q=12.5,77.25")
	assert.Contains(t, sys, "User triggered emergency alert.")
}

func TestPhonePrompt_Defaults(t *testing.T) {
	sess := state.NewSession(nil).Fork()
	sys := PhonePrompt(sess, "")
	assert.Contains(t, sys, "speaking to there on the phone")
	assert.Contains(t, sys, "No prior conversation recorded.")
	assert.Contains(t, sys, "Location not available")
	assert.NotContains(t, sys, "COVERT")
}

func TestTranscript(t *testing.T) {
	sess := newSession()
	sess.Conversation().Append(state.RoleUser, "hi")
	sess.Conversation().Append(state.RoleAssistant, "hello")
	c := New(nil, sess, Config{}, nil)
	assert.Equal(t, "USER: hi\nCALYX: hello\n", c.Transcript())
}
