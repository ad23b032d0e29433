package signal

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(p *Parser, fragments ...string) []Event {
	var out []Event
	for _, f := range fragments {
		out = append(out, p.Feed(f)...)
	}
	return append(out, p.Flush()...)
}

func collect(events []Event) (string, []Tag) {
	var text strings.Builder
	var tags []Tag
	for _, ev := range events {
		switch ev.Kind {
		case EventText:
			text.WriteString(ev.Text)
		case EventSignal:
			tags = append(tags, ev.Tag)
		}
	}
	return text.String(), tags
}

func TestParser_SplitTagEmitsSignalBeforeHeldText(t *testing.T) {
	p := NewParser()

	first := p.Feed("I will [MOD")
	assert.Empty(t, first, "text before an unresolved bracket is held")
	assert.True(t, p.Pending())

	events := p.Feed("E:CALM]let's breathe.")
	require.Len(t, events, 2)
	assert.Equal(t, EventSignal, events[0].Kind)
	assert.Equal(t, Tag{Family: FamilyMode, Name: ModeCalm}, events[0].Tag)
	assert.Equal(t, EventText, events[1].Kind)
	assert.True(t, strings.HasSuffix(events[1].Text, "let's breathe."))
	assert.NotContains(t, events[1].Text, "[")
	assert.False(t, p.Pending())
}

func TestParser_PersonaAndSignals(t *testing.T) {
	p := NewParser()
	text, tags := collect(feedAll(p, "Hey [MODE:DECOY:Brother]where are you? [SIGNAL:CALL]"))

	assert.Equal(t, "Hey where are you? ", text)
	require.Len(t, tags, 2)
	assert.Equal(t, Tag{Family: FamilyMode, Name: ModeDecoy, Persona: "brother"}, tags[0])
	assert.True(t, tags[1].Is(FamilySignal, SignalCall))
}

func TestParser_DuplicatesAreNotDeduplicated(t *testing.T) {
	p := NewParser()
	_, tags := collect(feedAll(p, "[SIGNAL:TIMER]a[SIGNAL:TIMER]b"))
	require.Len(t, tags, 2)
	assert.Equal(t, tags[0], tags[1])
}

func TestParser_UnknownDirectiveStrippedSilently(t *testing.T) {
	p := NewParser()
	text, tags := collect(feedAll(p, "ok [MODE:PIZZA] then [SIGNAL:DANCE] done"))
	assert.Equal(t, "ok  then  done", text)
	assert.Empty(t, tags)
}

func TestParser_MalformedDirectiveStripped(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"signal with argument", "[SIGNAL:TIMER:now] stay put", " stay put"},
		{"lowercase mode name", "[MODE:calm] breathe", " breathe"},
		{"digit in mode name", "ok [MODE:CALM2] then", "ok  then"},
		{"empty name", "[MODE:] hi", " hi"},
		{"spaces inside", "[SIGNAL: call now ] go", " go"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, tags := collect(feedAll(NewParser(), tc.in))
			assert.Equal(t, tc.want, text)
			assert.Empty(t, tags)
			assert.Equal(t, tc.want, StripTags(tc.in))
		})
	}
}

func TestParser_MalformedDirectiveSplitAcrossFragments(t *testing.T) {
	text, tags := collect(feedAll(NewParser(), "Stay [SIGNAL:TI", "MER:n", "ow] here"))
	assert.Equal(t, "Stay  here", text)
	assert.Empty(t, tags)
}

func TestParser_LiteralBracketsPassThrough(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"footnote", []string{"see [1] here"}, "see [1] here"},
		{"split literal", []string{"see [", "1] here"}, "see [1] here"},
		{"lowercase is not a directive", []string{"[mode:calm] hi"}, "[mode:calm] hi"},
		{"empty brackets", []string{"[] x"}, "[] x"},
		{"family prefix only", []string{"[MO] x"}, "[MO] x"},
		{"double open", []string{"[[MODE:CALM]x"}, "[x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, _ := collect(feedAll(NewParser(), tc.in...))
			assert.Equal(t, tc.want, text)
		})
	}
}

func TestParser_FlushDropsUnterminatedDirective(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed("Stay low [SIGNAL:TIM"))
	events := p.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "Stay low ", events[0].Text)
}

func TestParser_FlushKeepsUnterminatedLiteral(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed("list [MO"))
	events := p.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "list [MO", events[0].Text)
}

func TestParser_FragmentationInvariance(t *testing.T) {
	inputs := []string{
		"I will [MODE:CALM]let's breathe. [SIGNAL:TIMER]Stay with me.",
		"[MODE:DECOY:father]Hey kiddo, where are you?[SIGNAL:CALL] [1] ok",
		"No tags at all, just [brackets] and text.",
		"[SIGNAL:SAFE][SIGNAL:SAFE][MODE:STEALTH]quiet [MODE:BOGUS]now",
		"Hide [SIGNAL:TIMER:now] and [MODE:calm] wait [MODE:CALM2].",
	}
	rng := rand.New(rand.NewSource(7))

	for _, in := range inputs {
		wantText, wantTags := collect(feedAll(NewParser(), in))
		assert.Equal(t, StripTags(in), wantText)

		for trial := 0; trial < 200; trial++ {
			var frags []string
			rest := in
			for len(rest) > 0 {
				n := 1 + rng.Intn(6)
				if n > len(rest) {
					n = len(rest)
				}
				frags = append(frags, rest[:n])
				rest = rest[n:]
			}
			gotText, gotTags := collect(feedAll(NewParser(), frags...))
			require.Equal(t, wantText, gotText, "fragments=%q", frags)
			require.Equal(t, wantTags, gotTags, "fragments=%q", frags)
		}
	}
}

func TestParseTag(t *testing.T) {
	tag, ok := ParseTag("[MODE:DECOY:friend]")
	require.True(t, ok)
	assert.Equal(t, "[MODE:DECOY:friend]", tag.String())

	_, ok = ParseTag("[SIGNAL:CALL:now]")
	assert.False(t, ok, "signals take no persona")

	_, ok = ParseTag("MODE:CALM")
	assert.False(t, ok)
}
