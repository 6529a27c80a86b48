package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/satriahrh/temani/domain/repositories"
	"github.com/satriahrh/temani/internal/audio"
)

// Config holds every environment-sourced setting the relay needs. Values are
// read once at process start.
type Config struct {
	Host string
	Port string

	// DevMode enables the per-connection PCM debug capture and verbose bind
	// settings.
	DevMode bool

	// Provider selects the upstream realtime backend for new sessions.
	Provider repositories.ProviderKind

	OpenAIAPIKey string
	GeminiAPIKey string

	// JWTSecret verifies device bearer tokens.
	JWTSecret string
	// EncryptionKey is the base64 master key for stored provider credentials.
	EncryptionKey string

	MongoURI      string
	MongoDatabase string

	// Audio is the outbound codec configuration.
	Audio audio.Config
}

// Load reads configuration from the environment, loading a .env file first
// when present.
func Load() (*Config, error) {
	// A missing .env file is fine outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Host:          envOr("HOST", "0.0.0.0"),
		Port:          envOr("PORT", "8080"),
		DevMode:       os.Getenv("DEV_MODE") == "True" || os.Getenv("DEV_MODE") == "true",
		Provider:      repositories.ProviderKind(envOr("AI_PROVIDER", string(repositories.ProviderGemini))),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		JWTSecret:     os.Getenv("JWT_SECRET_KEY"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		MongoURI:      envOr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGODB_DATABASE", "temani"),
		Audio:         audio.DefaultConfig(),
	}

	if ms, err := envInt("AUDIO_FRAME_DURATION_MS"); err != nil {
		return nil, err
	} else if ms > 0 {
		cfg.Audio.FrameDuration = time.Duration(ms) * time.Millisecond
	}
	if rate, err := envInt("AUDIO_SAMPLE_RATE"); err != nil {
		return nil, err
	} else if rate > 0 {
		cfg.Audio.SampleRate = rate
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET_KEY is required")
	}

	switch cfg.Provider {
	case repositories.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("config: OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case repositories.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("config: GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	default:
		return nil, fmt.Errorf("config: unknown AI_PROVIDER %q", cfg.Provider)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}
