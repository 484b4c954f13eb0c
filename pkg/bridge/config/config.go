// Package config builds the bridge's immutable configuration once at
// startup. Components receive the value by reference and never read the
// process environment themselves, so they stay testable without ambient
// global state.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/craftline/voicebridge/pkg/core"
	"github.com/craftline/voicebridge/pkg/core/speech"
	"github.com/craftline/voicebridge/pkg/core/vad"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host name used to build the
	// media-stream socket URL in call-control responses. Its absence is a
	// configuration error at webhook time, not at startup.
	PublicHost string

	// TwilioAuthToken is the shared secret for webhook signature checks.
	TwilioAuthToken string

	// GeminiAPIKey may be empty at startup; the signaling handler then
	// answers calls with a spoken apology instead of a stream connect.
	GeminiAPIKey      string
	SpeechModel       string
	SystemInstruction string

	// Greeting is spoken from the webhook response before the media
	// stream opens, for perceived low latency.
	Greeting string

	DatabaseURL string

	// BrowserTokenSecret verifies the short-lived signed tokens browser
	// clients present before any audio is accepted.
	BrowserTokenSecret string

	VADAggressiveness int

	// MaxSessionDuration bounds a call or browser session when > 0.
	// Zero disables the limit.
	MaxSessionDuration time.Duration

	HandshakeTimeout    time.Duration
	WSWriteTimeout      time.Duration
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VB_ADDR", ":8080"),
		PublicHost:          envOr("VB_PUBLIC_HOST", ""),
		TwilioAuthToken:     envOr("VB_TWILIO_AUTH_TOKEN", ""),
		GeminiAPIKey:        envOr("VB_GEMINI_API_KEY", ""),
		SpeechModel:         envOr("VB_SPEECH_MODEL", speech.DefaultModel),
		SystemInstruction:   envOr("VB_SYSTEM_INSTRUCTION", defaultSystemInstruction),
		Greeting:            envOr("VB_GREETING", "Thanks for calling. One moment while I connect you."),
		DatabaseURL:         envOr("VB_DATABASE_URL", ""),
		BrowserTokenSecret:  envOr("VB_VOICE_TOKEN_SECRET", ""),
		VADAggressiveness:   envIntOr("VB_VAD_AGGRESSIVENESS", vad.DefaultAggressiveness),
		MaxSessionDuration:  envDurationOr("VB_MAX_SESSION_DURATION", 0),
		HandshakeTimeout:    envDurationOr("VB_HANDSHAKE_TIMEOUT", 5*time.Second),
		WSWriteTimeout:      envDurationOr("VB_WS_WRITE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:   envDurationOr("VB_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VB_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.TwilioAuthToken == "" {
		return Config{}, core.NewConfigurationErrorWithParam("VB_TWILIO_AUTH_TOKEN must be set", "VB_TWILIO_AUTH_TOKEN")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, core.NewConfigurationErrorWithParam("VB_DATABASE_URL must be set", "VB_DATABASE_URL")
	}
	if cfg.BrowserTokenSecret == "" {
		return Config{}, core.NewConfigurationErrorWithParam("VB_VOICE_TOKEN_SECRET must be set", "VB_VOICE_TOKEN_SECRET")
	}
	if cfg.VADAggressiveness < 0 || cfg.VADAggressiveness > 3 {
		return Config{}, core.NewConfigurationErrorWithParam("VB_VAD_AGGRESSIVENESS must be 0..3", "VB_VAD_AGGRESSIVENESS")
	}
	if cfg.MaxSessionDuration < 0 {
		return Config{}, core.NewConfigurationErrorWithParam("VB_MAX_SESSION_DURATION must be >= 0", "VB_MAX_SESSION_DURATION")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, core.NewConfigurationErrorWithParam("VB_HANDSHAKE_TIMEOUT must be > 0", "VB_HANDSHAKE_TIMEOUT")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, core.NewConfigurationErrorWithParam("VB_WS_WRITE_TIMEOUT must be > 0", "VB_WS_WRITE_TIMEOUT")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, core.NewConfigurationErrorWithParam("VB_READ_HEADER_TIMEOUT must be > 0", "VB_READ_HEADER_TIMEOUT")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, core.NewConfigurationErrorWithParam("VB_SHUTDOWN_GRACE_PERIOD must be > 0", "VB_SHUTDOWN_GRACE_PERIOD")
	}

	cfg.PublicHost = strings.TrimPrefix(strings.TrimPrefix(cfg.PublicHost, "https://"), "wss://")
	cfg.PublicHost = strings.TrimSuffix(cfg.PublicHost, "/")

	return cfg, nil
}

const defaultSystemInstruction = "You are a friendly, concise phone assistant for a field-services company. " +
	"Help callers with questions about their quotes, appointments and orders. " +
	"Keep replies short; this is a voice conversation."

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
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
