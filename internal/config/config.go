// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	GeminiAPIKey string
	ChatModel    string

	TTSModel string
	TTSVoice string
	AudioDir string

	MaxAudioTurnBytes int64
	MaxTextTurnBytes  int64
	MaxSynthesisRunes int

	ChatRetries    int
	ChatRetryBase  time.Duration
	SynthRetries   int
	SynthRetryBase time.Duration

	SynthesisEnabled bool
	SessionIdleTTL   time.Duration
	TurnQueueDepth   int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/plantstate.db"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		ChatModel:    getEnv("CHAT_MODEL", "gemini-2.5-flash"),

		TTSModel: getEnv("TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		TTSVoice: getEnv("TTS_VOICE", "Kore"),
		AudioDir: getEnv("AUDIO_DIR", "./data/audio_responses"),

		MaxAudioTurnBytes: getEnvInt64("MAX_AUDIO_TURN_BYTES", 8<<20),
		MaxTextTurnBytes:  getEnvInt64("MAX_TEXT_TURN_BYTES", 32<<10),
		MaxSynthesisRunes: getEnvInt("MAX_SYNTHESIS_RUNES", 2000),

		ChatRetries:    getEnvInt("CHAT_RETRIES", 3),
		ChatRetryBase:  getEnvDuration("CHAT_RETRY_BASE", 2*time.Second),
		SynthRetries:   getEnvInt("SYNTH_RETRIES", 2),
		SynthRetryBase: getEnvDuration("SYNTH_RETRY_BASE", time.Second),

		SynthesisEnabled: getEnvBool("SYNTHESIS_ENABLED", true),
		SessionIdleTTL:   getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		TurnQueueDepth:   getEnvInt("TURN_QUEUE_DEPTH", 16),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.ChatModel == "" {
		return fmt.Errorf("CHAT_MODEL cannot be empty")
	}
	if c.AudioDir == "" {
		return fmt.Errorf("AUDIO_DIR cannot be empty")
	}
	if c.MaxAudioTurnBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_TURN_BYTES must be > 0")
	}
	if c.MaxTextTurnBytes <= 0 {
		return fmt.Errorf("MAX_TEXT_TURN_BYTES must be > 0")
	}
	if c.MaxSynthesisRunes <= 0 {
		return fmt.Errorf("MAX_SYNTHESIS_RUNES must be > 0")
	}
	if c.ChatRetries < 0 || c.SynthRetries < 0 {
		return fmt.Errorf("retry counts cannot be negative")
	}
	if c.ChatRetryBase <= 0 || c.SynthRetryBase <= 0 {
		return fmt.Errorf("retry base delays must be > 0")
	}
	if c.TurnQueueDepth <= 0 {
		return fmt.Errorf("TURN_QUEUE_DEPTH must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
