package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the interview avatar service.
type Config struct {
	BindAddr             string
	ShutdownTimeout      time.Duration
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration
	MetricsNamespace     string

	AllowAnyOrigin bool

	SynthProvider string

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	SynthVoice        string
	SynthModel        string
	SynthTimeout      time.Duration

	DIDAPIKey          string
	DIDBaseURL         string
	PresenterID        string
	PresenterVoice     string
	RenderTimeout      time.Duration
	RenderPollInterval time.Duration
	IdleVideoURL       string
	PresenterImageURL  string

	// ForcedAvatarMode pins every session to "video" or "audio_only" and
	// disables the automatic per-session degrade. Empty means auto.
	ForcedAvatarMode string

	QuestionsDatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "intervista"),
		AllowAnyOrigin:    false,
		SynthProvider:     envOrDefault("SYNTH_PROVIDER", "auto"),
		ElevenLabsAPIKey:  stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		// Default to a warm professional female premade voice.
		SynthVoice: envOrDefault("SYNTH_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		SynthModel: envOrDefault("SYNTH_MODEL_ID", "eleven_multilingual_v2"),
		DIDAPIKey:  stringsTrimSpace("DID_API_KEY"),
		DIDBaseURL: envOrDefault("DID_API_URL", "https://api.d-id.com"),
		// D-ID hosted presenter with a matching hosted idle loop and image.
		PresenterID:          envOrDefault("DID_PRESENTER_ID", "v2_public_Amber@0zSz8kflCN"),
		PresenterVoice:       envOrDefault("DID_TTS_VOICE", "en-US-JennyNeural"),
		IdleVideoURL:         envOrDefault("AVATAR_IDLE_VIDEO_URL", "https://clips-presenters.d-id.com/v2/Amber/0zSz8kflCN/OUM7xZOuD5/idle.mp4"),
		PresenterImageURL:    envOrDefault("AVATAR_IMAGE_URL", "https://clips-presenters.d-id.com/v2/Amber/0zSz8kflCN/OUM7xZOuD5/image.png"),
		ForcedAvatarMode:     strings.ToLower(stringsTrimSpace("AVATAR_FORCED_MODE")),
		QuestionsDatabaseURL: stringsTrimSpace("QUESTIONS_DATABASE_URL"),
		ShutdownTimeout:      15 * time.Second,
		SessionIdleTimeout:   30 * time.Minute,
		SessionSweepInterval: 30 * time.Second,
		SynthTimeout:         10 * time.Second,
		RenderTimeout:        90 * time.Second,
		RenderPollInterval:   2 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionSweepInterval, err = durationFromEnv("APP_SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthTimeout, err = durationFromEnv("SYNTH_TIMEOUT", cfg.SynthTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RenderTimeout, err = durationFromEnv("AVATAR_RENDER_TIMEOUT", cfg.RenderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RenderPollInterval, err = durationFromEnv("AVATAR_RENDER_POLL_INTERVAL", cfg.RenderPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SESSION_SWEEP_INTERVAL must be positive")
	}
	if cfg.SynthTimeout <= 0 {
		return Config{}, fmt.Errorf("SYNTH_TIMEOUT must be positive")
	}
	if cfg.RenderTimeout <= 0 {
		return Config{}, fmt.Errorf("AVATAR_RENDER_TIMEOUT must be positive")
	}
	if cfg.RenderPollInterval <= 0 || cfg.RenderPollInterval >= cfg.RenderTimeout {
		return Config{}, fmt.Errorf("AVATAR_RENDER_POLL_INTERVAL must be positive and below AVATAR_RENDER_TIMEOUT")
	}
	switch cfg.ForcedAvatarMode {
	case "", "video", "audio_only":
	default:
		return Config{}, fmt.Errorf("invalid AVATAR_FORCED_MODE: %q (expected video|audio_only)", cfg.ForcedAvatarMode)
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

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
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
