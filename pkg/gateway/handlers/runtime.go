package handlers

import (
	"time"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/companion"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/escalation"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/mode"
	"github.com/sanchita-suni/Calyx/pkg/core/directory"
	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
	"github.com/sanchita-suni/Calyx/pkg/core/relay"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/tts"
	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/phone"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/session"
)

// Runtime holds the collaborators shared by every connection. Nil speech
// collaborators degrade sessions instead of refusing them.
type Runtime struct {
	Provider  core.Provider
	STT       session.STTProvider
	TTS       tts.Provider
	Relay     *relay.Guardian
	Vault     evidence.Vault
	Directory directory.Directory
	Modes     *mode.Table
	Intro     *phone.IntroCache
	// Clock drives escalation timers. Nil uses the wall clock.
	Clock escalation.Clock
}

// Inbound microphone budget for browser sessions: 16kHz PCM16 is 32000
// bytes per second.
const (
	browserMaxAudioFPS         = 50
	browserMaxAudioBytesPerSec = 64000
	browserAudioBurstSeconds   = 2
)

func companionConfig(cfg config.Config) companion.Config {
	model := cfg.GroqModel
	if cfg.LLMProvider == config.LLMProviderGemini {
		model = cfg.GeminiModel
	}
	return companion.Config{
		Model:          model,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		MemoryMessages: cfg.MemoryMessages,
		SafeWord:       cfg.SafeWord,
		Timeout:        cfg.UpstreamTimeout,
	}
}

func readTimeout(cfg config.Config) time.Duration {
	if cfg.WSPingInterval <= 0 {
		return 0
	}
	return 3 * cfg.WSPingInterval
}
