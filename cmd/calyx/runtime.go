package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/mode"
	"github.com/sanchita-suni/Calyx/pkg/core/directory"
	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
	"github.com/sanchita-suni/Calyx/pkg/core/providers/gemini"
	"github.com/sanchita-suni/Calyx/pkg/core/providers/groq"
	"github.com/sanchita-suni/Calyx/pkg/core/relay"
	"github.com/sanchita-suni/Calyx/pkg/core/telephony/twilio"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/stt"
	"github.com/sanchita-suni/Calyx/pkg/core/voice/tts"
	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/handlers"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/phone"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/session"
)

const introWarmTimeout = 20 * time.Second

// wiring is everything serve builds from the configuration.
type wiring struct {
	runtime *handlers.Runtime
	checks  []handlers.ReadyCheck
	closers []func()
}

func (w *wiring) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

// buildRuntime connects the collaborators. Missing credentials leave the
// matching collaborator nil; only unreachable storage is fatal.
func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*wiring, error) {
	w := &wiring{runtime: &handlers.Runtime{Modes: mode.DefaultTable()}}
	rt := w.runtime

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Provider = provider

	if cfg.DeepgramAPIKey != "" {
		rt.STT = session.STTProviderAdapter{Provider: stt.NewDeepgram(cfg.DeepgramAPIKey)}
	} else {
		logger.Warn("DEEPGRAM_API_KEY is not set, sessions accept text only")
	}
	if cfg.MurfAPIKey != "" {
		rt.TTS = tts.NewMurf(cfg.MurfAPIKey)
		rt.Intro = phone.NewIntroCache(rt.TTS)
	} else {
		logger.Warn("MURF_API_KEY is not set, replies are text only")
	}

	var carrier relay.Carrier
	if cfg.TwilioConfigured() {
		carrier = twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	} else {
		logger.Warn("twilio credentials are not set, escalations are simulated")
	}
	rt.Relay = relay.New(carrier, relay.Config{
		PublicDomain:   cfg.PublicDomain,
		FallbackNumber: cfg.EmergencyContactNumber,
	}, logger.With("component", "relay"))

	if cfg.DatabaseURL != "" {
		pg, err := evidence.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("open evidence archive: %w", err)
		}
		w.closers = append(w.closers, pg.Close)
		w.checks = append(w.checks, handlers.ReadyCheck{Name: "evidence", Ping: pg.Ping})
		rt.Vault = pg
	} else {
		rt.Vault = evidence.NewMemory()
	}

	if cfg.RedisAddr != "" {
		rdb, err := directory.NewRedis(ctx, directory.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.DirectoryTTL,
		})
		if err != nil {
			w.close()
			return nil, fmt.Errorf("open directory: %w", err)
		}
		w.closers = append(w.closers, func() { _ = rdb.Close() })
		w.checks = append(w.checks, handlers.ReadyCheck{Name: "directory", Ping: rdb.Ping})
		rt.Directory = rdb
	} else {
		rt.Directory = directory.NewMemory(cfg.DirectoryTTL)
	}

	if rt.Intro != nil {
		warmCtx, cancel := context.WithTimeout(ctx, introWarmTimeout)
		if err := rt.Intro.Warm(warmCtx); err != nil {
			logger.Warn("intro clip not cached, calls use the quick intro", "error", err)
		}
		cancel()
	}
	return w, nil
}

// buildProvider registers every completion provider that has a key and
// routes bare model names to the configured one.
func buildProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (core.Provider, error) {
	engine := core.NewEngine(string(cfg.LLMProvider))
	if cfg.GroqAPIKey != "" {
		engine.RegisterProvider(groq.New(cfg.GroqAPIKey, groq.WithModel(cfg.GroqModel)))
	}
	if cfg.GeminiAPIKey != "" {
		p, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		engine.RegisterProvider(p)
	}
	if _, ok := engine.GetProvider(string(cfg.LLMProvider)); !ok {
		logger.Warn("completion provider has no API key, replies use the fallback", "provider", cfg.LLMProvider)
	}
	return engine, nil
}
