package phone

import (
	"context"
	"sync"

	"github.com/sanchita-suni/Calyx/pkg/core/voice/audio"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/tts"
)

const (
	// CachedIntroText is rendered once at startup and replayed on every call.
	CachedIntroText = "Hello, this is Calyx, an AI safety companion. I'm calling to alert you about an emergency. Please hold on."
	// QuickIntroText is synthesized per call when no cached clip exists.
	QuickIntroText = "Hello, this is Calyx. I'm calling about an emergency. Please hold on."
)

// IntroCache holds the pre-rendered greeting as mu-law audio.
type IntroCache struct {
	tts tts.Provider

	mu   sync.RWMutex
	clip []byte
}

func NewIntroCache(p tts.Provider) *IntroCache {
	return &IntroCache{tts: p}
}

// Warm renders the greeting. It is a no-op once a clip is cached.
func (c *IntroCache) Warm(ctx context.Context) error {
	if c == nil || c.tts == nil {
		return nil
	}
	if _, ok := c.Clip(); ok {
		return nil
	}
	syn, err := c.tts.Synthesize(ctx, CachedIntroText, tts.PhoneOptions())
	if err != nil {
		return err
	}
	ulaw := audio.EncodeULaw(audio.StripWAVHeader(syn.Audio))
	if len(ulaw) == 0 {
		return nil
	}
	c.mu.Lock()
	c.clip = ulaw
	c.mu.Unlock()
	return nil
}

// Clip returns the cached greeting.
func (c *IntroCache) Clip() ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clip, len(c.clip) > 0
}
