package voice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
)

func TestFilterHallucinations(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		absent  string
		present string
	}{
		{"on the way", "Help is on the way. Stay on the line.", "on the way", "Stay on the line."},
		{"dispatch claim", "I've sent police to you. Keep the door locked.", "sent police", "Keep the door locked."},
		{"authorities", "The authorities have been notified, so breathe.", "notified", "so breathe."},
		{"calling", "I'm calling 911 right now. Stay low.", "calling 911", "Stay low."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FilterHallucinations(tt.in)
			assert.NotContains(t, strings.ToLower(out), tt.absent)
			assert.Contains(t, out, tt.present)
			assert.NotContains(t, out, "  ")
		})
	}
}

func TestFilterHallucinations_KeepsCleanText(t *testing.T) {
	assert.Equal(t, "Lock the door.", FilterHallucinations("Lock the door."))
}

func TestFilterHallucinations_ClaimOnlyIsNeverSpoken(t *testing.T) {
	assert.Empty(t, FilterHallucinations("help is on the way"))
	assert.Empty(t, FilterHallucinations("  I'm calling 911  "))

	_, ok := CleanSegment("Help is on the way.")
	assert.False(t, ok)
}

func TestCleanSegment_StripsResidualTags(t *testing.T) {
	out, ok := CleanSegment("MODE:CALM Breathe in slowly.")
	require.True(t, ok)
	assert.Equal(t, "Breathe in slowly.", out)

	_, ok = CleanSegment("[SIGNAL:CALL]")
	assert.False(t, ok)
}

func collect(a *Adapter, input string) []Item {
	p := signal.NewParser()
	var items []Item
	for _, ev := range p.Feed(input) {
		items = append(items, a.Feed(ev)...)
	}
	for _, ev := range p.Flush() {
		items = append(items, a.Feed(ev)...)
	}
	return append(items, a.Finish()...)
}

func TestAdapter_MarkersPassThrough(t *testing.T) {
	a := NewAdapter(0)
	items := collect(a, "[MODE:CALM] Breathe with me. In for four. [SIGNAL:TIMER]Out for four")

	require.Len(t, items, 5)
	assert.Equal(t, ItemMarker, items[0].Kind)
	assert.Equal(t, signal.ModeCalm, items[0].Tag.Name)

	var speech []string
	var markers []string
	for _, it := range items {
		switch it.Kind {
		case ItemSpeech:
			speech = append(speech, it.Text)
		case ItemMarker:
			markers = append(markers, it.Tag.Name)
		}
	}
	assert.Equal(t, []string{"Breathe with me.", "In for four.", "Out for four."}, speech)
	assert.Equal(t, []string{signal.ModeCalm, signal.SignalTimer}, markers)
}

func TestAdapter_FiltersEverySegment(t *testing.T) {
	a := NewAdapter(0)
	items := collect(a, "Help is on the way. Stay where you are.")
	for _, it := range items {
		assert.NotContains(t, strings.ToLower(it.Text), "help is on the way")
	}
}

func TestEstimateDuration(t *testing.T) {
	text := strings.Repeat("x", 25)
	assert.Equal(t, 2*time.Second, EstimateDuration(text, 0))
	assert.Equal(t, 4*time.Second, EstimateDuration(text, 50))
}

func TestPacer_Wait(t *testing.T) {
	var slept []time.Duration
	p := &Pacer{
		Slack: 100 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	require.NoError(t, p.Wait(context.Background(), strings.Repeat("x", 25), 0))
	require.NoError(t, p.Gap(context.Background(), PhoneGap))
	assert.Equal(t, []time.Duration{2100 * time.Millisecond, PhoneGap}, slept)
}

func TestPacer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewPacer().Wait(ctx, "Stay calm.", 0)
	assert.ErrorIs(t, err, context.Canceled)
}
