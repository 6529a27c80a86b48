package config

import (
	"testing"
	"time"

	"github.com/satriahrh/temani/domain/repositories"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("GEMINI_API_KEY", "gk-test")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("DEV_MODE", "")
	t.Setenv("HOST", "")
	t.Setenv("PORT", "")
	t.Setenv("AUDIO_FRAME_DURATION_MS", "")
	t.Setenv("AUDIO_SAMPLE_RATE", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "0.0.0.0" || cfg.Port != "8080" {
		t.Errorf("bind defaults = %s:%s, want 0.0.0.0:8080", cfg.Host, cfg.Port)
	}
	if cfg.Provider != repositories.ProviderGemini {
		t.Errorf("Provider = %q, want gemini default", cfg.Provider)
	}
	if cfg.DevMode {
		t.Error("DevMode defaulted to true")
	}
	if cfg.Audio.FrameSize() != 5760 {
		t.Errorf("default frame size = %d, want 5760", cfg.Audio.FrameSize())
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded without JWT_SECRET_KEY")
	}
}

func TestLoad_RequiresProviderKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded with AI_PROVIDER=openai and no key")
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AI_PROVIDER", "claude-opus")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted an unknown provider")
	}
}

func TestLoad_AudioOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUDIO_FRAME_DURATION_MS", "60")
	t.Setenv("AUDIO_SAMPLE_RATE", "16000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Audio.FrameDuration != 60*time.Millisecond {
		t.Errorf("FrameDuration = %v, want 60ms", cfg.Audio.FrameDuration)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	// 16000 Hz * 0.06 s * 1 ch * 2 B = 1920
	if cfg.Audio.FrameSize() != 1920 {
		t.Errorf("FrameSize = %d, want 1920", cfg.Audio.FrameSize())
	}
}

func TestLoad_RejectsBadAudioOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUDIO_FRAME_DURATION_MS", "sixty")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted a non-integer frame duration")
	}
}

func TestLoad_DevMode(t *testing.T) {
	setBaseEnv(t)

	for _, v := range []string{"True", "true"} {
		t.Setenv("DEV_MODE", v)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if !cfg.DevMode {
			t.Errorf("DevMode = false for DEV_MODE=%q", v)
		}
	}
}
