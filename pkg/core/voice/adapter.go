package voice

import (
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/signal"
)

// ItemKind distinguishes speech from pass-through markers.
type ItemKind int

const (
	ItemSpeech ItemKind = iota + 1
	ItemMarker
)

// Item is one unit handed to the delivery loop: a cleaned sentence to
// synthesize, or a directive the orchestrator acts on without speaking it.
type Item struct {
	Kind ItemKind
	Text string
	Tag  signal.Tag
}

// Adapter turns parser events into synthesis items. Markers are forwarded
// as soon as they arrive; text is held until a sentence completes.
type Adapter struct {
	seg *Segmenter
}

// NewAdapter returns an Adapter segmenting at minChars.
func NewAdapter(minChars int) *Adapter {
	return &Adapter{seg: NewSegmenter(minChars)}
}

// Feed consumes one parser event.
func (a *Adapter) Feed(ev signal.Event) []Item {
	switch ev.Kind {
	case signal.EventSignal:
		return []Item{{Kind: ItemMarker, Tag: ev.Tag}}
	case signal.EventText:
		return speechItems(a.seg.Add(ev.Text))
	}
	return nil
}

// Finish flushes the trailing partial sentence.
func (a *Adapter) Finish() []Item {
	rest := a.seg.Flush()
	if rest == "" {
		return nil
	}
	return speechItems([]string{rest})
}

// Reset drops buffered text, used when a turn is interrupted.
func (a *Adapter) Reset() {
	a.seg.Reset()
}

func speechItems(sentences []string) []Item {
	var out []Item
	for _, s := range sentences {
		if len(s) < 3 {
			continue
		}
		clean, ok := CleanSegment(s)
		if !ok {
			continue
		}
		out = append(out, Item{Kind: ItemSpeech, Text: clean})
	}
	return out
}
