package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the speech desk service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	ProviderBaseURL    string
	ProviderAPIKey     string
	RequestTimeout     time.Duration
	TranscriptionModel string

	DefaultModelID     string
	RetryPronePrefixes []string
	RetryDelay         time.Duration
	PricePerMillion    float64

	DatabaseURL     string
	SQLitePath      string
	MaxHistoryBytes int
	SaveDebounce    time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "speechdesk"),
		AllowAnyOrigin:     false,
		ProviderBaseURL:    envOrDefault("TTS_BASE_URL", "https://api.siliconflow.cn/v1"),
		ProviderAPIKey:     envTrimmed("TTS_API_KEY"),
		TranscriptionModel: envOrDefault("TTS_TRANSCRIPTION_MODEL", "FunAudioLLM/SenseVoiceSmall"),
		DefaultModelID:     envOrDefault("TTS_DEFAULT_MODEL_ID", "FunAudioLLM/CosyVoice2-0.5B"),
		RetryPronePrefixes: listFromEnv("TTS_RETRY_PRONE_PREFIXES", []string{"fishaudio/"}),
		DatabaseURL:        envTrimmed("DATABASE_URL"),
		SQLitePath:         envOrDefault("APP_SQLITE_PATH", "speechdesk.db"),
		ShutdownTimeout:    15 * time.Second,
		RequestTimeout:     2 * time.Minute,
		RetryDelay:         time.Second,
		PricePerMillion:    105.0,
		MaxHistoryBytes:    5 << 20,
		SaveDebounce:       500 * time.Millisecond,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("TTS_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryDelay, err = durationFromEnv("TTS_RETRY_DELAY", cfg.RetryDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.SaveDebounce, err = durationFromEnv("APP_SAVE_DEBOUNCE", cfg.SaveDebounce)
	if err != nil {
		return Config{}, err
	}
	cfg.PricePerMillion, err = floatFromEnv("TTS_PRICE_PER_MILLION_BYTES", cfg.PricePerMillion)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxHistoryBytes, err = intFromEnv("APP_MAX_HISTORY_BYTES", cfg.MaxHistoryBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.RequestTimeout < time.Second {
		return Config{}, fmt.Errorf("TTS_REQUEST_TIMEOUT must be at least 1s")
	}
	if cfg.RetryDelay <= 0 {
		return Config{}, fmt.Errorf("TTS_RETRY_DELAY must be positive")
	}
	if cfg.PricePerMillion < 0 {
		return Config{}, fmt.Errorf("TTS_PRICE_PER_MILLION_BYTES must be >= 0")
	}
	if cfg.MaxHistoryBytes <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_HISTORY_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
