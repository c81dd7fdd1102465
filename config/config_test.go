package config

import (
	"testing"

	"github.com/hypecast/backend/internal/models"
)

func validConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			WindowSeconds: 60,
			Weights:       ScoreWeights{Chat: 0.4, Audio: 0.3, Viewer: 0.3},
		},
		Publish:   PublishConfig{MaxAttempts: 3},
		Platforms: defaultPlatforms(),
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Detection.Weights = ScoreWeights{Chat: 0.5, Audio: 0.5, Viewer: 0.5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected weight sum error")
	}
}

func TestValidateRejectsInvalidProfile(t *testing.T) {
	cfg := validConfig()
	cfg.Platforms = append(cfg.Platforms, models.PlatformProfile{Name: "broken", MaxTitleLength: 0})
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected profile error")
	}
}

func TestProfileLookupIsCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	p, ok := cfg.Profile("TikTok")
	if !ok {
		t.Fatal("profile not found")
	}
	if p.Name != "tiktok" {
		t.Fatalf("name = %q, want tiktok", p.Name)
	}
	if _, ok := cfg.Profile("myspace"); ok {
		t.Fatal("unexpected profile for unknown platform")
	}
}
