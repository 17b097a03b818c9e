package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime knobs. Everything comes from env with defaults
// chosen to match the production backend.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Voice capture
	SilenceWindow   time.Duration
	RestartCooldown time.Duration
	SampleRateHz    int

	// Upload pipeline
	PollInterval     time.Duration
	PollMaxAttempts  int
	MaxImageBytes    int64
	MaxDocumentBytes int64

	// Live transcription engine: "ws" (backend realtime endpoint),
	// "google" (Cloud Speech streaming) or "none" (fallback-only capture).
	LiveEngine    string
	RealtimeWSURL string
}

func Load() Config {
	return Config{
		APIBaseURL:  envStr("API_BASE_URL", "https://api.baatcheet.app/api"),
		HTTPTimeout: envDur("HTTP_TIMEOUT", 30*time.Second),

		SilenceWindow:   envDur("SILENCE_WINDOW", 3500*time.Millisecond),
		RestartCooldown: envDur("RESTART_COOLDOWN", 300*time.Millisecond),
		SampleRateHz:    envInt("SAMPLE_RATE_HZ", 16000),

		PollInterval:     envDur("POLL_INTERVAL", time.Second),
		PollMaxAttempts:  envInt("POLL_MAX_ATTEMPTS", 60),
		MaxImageBytes:    envInt64("MAX_IMAGE_BYTES", 10<<20),
		MaxDocumentBytes: envInt64("MAX_DOCUMENT_BYTES", 5<<20),

		LiveEngine:    envStr("LIVE_ENGINE", "ws"),
		RealtimeWSURL: envStr("REALTIME_WS_URL", "wss://api.baatcheet.app/api/audio/stream"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
