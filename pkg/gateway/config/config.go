package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type LLMProvider string

const (
	LLMProviderGroq   LLMProvider = "groq"
	LLMProviderGemini LLMProvider = "gemini"
)

type Config struct {
	Addr string

	// PublicDomain is the externally reachable host the carrier calls back
	// on (wss://{domain}/ws/twilio) and that download links point to.
	PublicDomain string

	LogLevel  string
	LogFormat string

	// Crisis behaviour.
	SafeWord            string
	EscalationCountdown time.Duration
	InactivityTimeout   time.Duration

	// Completion collaborator.
	LLMProvider    LLMProvider
	GroqAPIKey     string
	GroqModel      string
	GeminiAPIKey   string
	GeminiModel    string
	Temperature    float64
	MaxTokens      int
	MemoryMessages int

	// Speech collaborators. Empty keys degrade the session.
	DeepgramAPIKey string
	MurfAPIKey     string

	// Carrier. Missing credentials run the relay in simulation mode.
	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioPhoneNumber      string
	EmergencyContactNumber string

	// Storage. Empty values select the in-process implementations.
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DirectoryTTL  time.Duration

	// WebSocket transport.
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	WSMaxMessageBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
	UpstreamTimeout     time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("CALYX_ADDR", ":8000"),
		PublicDomain:           envOr("CALYX_PUBLIC_DOMAIN", envOr("NGROK_DOMAIN", "")),
		LogLevel:               strings.ToLower(envOr("CALYX_LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(envOr("CALYX_LOG_FORMAT", "text")),
		SafeWord:               envOr("CALYX_SAFE_WORD", "blueberries"),
		EscalationCountdown:    envDurationOr("CALYX_ESCALATION_COUNTDOWN", 5*time.Second),
		InactivityTimeout:      envDurationOr("CALYX_INACTIVITY_TIMEOUT", 10*time.Second),
		LLMProvider:            LLMProvider(strings.ToLower(envOr("CALYX_LLM_PROVIDER", string(LLMProviderGroq)))),
		GroqAPIKey:             envOr("GROQ_API_KEY", ""),
		GroqModel:              envOr("CALYX_GROQ_MODEL", "llama-3.1-8b-instant"),
		GeminiAPIKey:           envOr("GEMINI_API_KEY", ""),
		GeminiModel:            envOr("CALYX_GEMINI_MODEL", "gemini-2.0-flash"),
		Temperature:            envFloat64Or("CALYX_LLM_TEMPERATURE", 0.35),
		MaxTokens:              envIntOr("CALYX_LLM_MAX_TOKENS", 150),
		MemoryMessages:         envIntOr("CALYX_MEMORY_MESSAGES", 30),
		DeepgramAPIKey:         envOr("DEEPGRAM_API_KEY", ""),
		MurfAPIKey:             envOr("MURF_API_KEY", ""),
		TwilioAccountSID:       envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:        envOr("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:      envOr("TWILIO_PHONE_NUMBER", ""),
		EmergencyContactNumber: envOr("EMERGENCY_CONTACT_NUMBER", ""),
		DatabaseURL:            envOr("DATABASE_URL", ""),
		RedisAddr:              envOr("REDIS_ADDR", ""),
		RedisPassword:          envOr("REDIS_PASSWORD", ""),
		RedisDB:                envIntOr("REDIS_DB", 0),
		DirectoryTTL:           envDurationOr("CALYX_DIRECTORY_TTL", 24*time.Hour),
		WSPingInterval:         envDurationOr("CALYX_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:         envDurationOr("CALYX_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes:      envInt64Or("CALYX_WS_MAX_MESSAGE_BYTES", 64*1024),
		CORSAllowedOrigins:     make(map[string]struct{}),
		ReadHeaderTimeout:      envDurationOr("CALYX_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:    envDurationOr("CALYX_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamTimeout:        envDurationOr("CALYX_UPSTREAM_TIMEOUT", 12*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("CALYX_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.LLMProvider {
	case LLMProviderGroq, LLMProviderGemini:
	default:
		return Config{}, fmt.Errorf("CALYX_LLM_PROVIDER must be one of groq|gemini")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("CALYX_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("CALYX_LOG_FORMAT must be one of text|json")
	}

	if strings.TrimSpace(cfg.SafeWord) == "" {
		return Config{}, fmt.Errorf("CALYX_SAFE_WORD must not be empty")
	}
	if cfg.EscalationCountdown <= 0 {
		return Config{}, fmt.Errorf("CALYX_ESCALATION_COUNTDOWN must be > 0")
	}
	if cfg.InactivityTimeout <= 0 {
		return Config{}, fmt.Errorf("CALYX_INACTIVITY_TIMEOUT must be > 0")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("CALYX_LLM_TEMPERATURE must be within [0, 2]")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("CALYX_LLM_MAX_TOKENS must be > 0")
	}
	if cfg.MemoryMessages < 2 {
		return Config{}, fmt.Errorf("CALYX_MEMORY_MESSAGES must be >= 2")
	}
	if cfg.RedisDB < 0 {
		return Config{}, fmt.Errorf("REDIS_DB must be >= 0")
	}
	if cfg.DirectoryTTL <= 0 {
		return Config{}, fmt.Errorf("CALYX_DIRECTORY_TTL must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("CALYX_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CALYX_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("CALYX_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CALYX_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CALYX_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamTimeout <= 0 {
		return Config{}, fmt.Errorf("CALYX_UPSTREAM_TIMEOUT must be > 0")
	}

	return cfg, nil
}

// TwilioConfigured reports whether all carrier credentials are present.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
