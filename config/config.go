package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hypecast/backend/internal/models"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Detection DetectionConfig
	Publish   PublishConfig
	Renderer  RendererConfig
	Platforms []models.PlatformProfile
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT validation settings. Tokens are minted by the account
// service; this backend only validates with the shared secret.
type JWTConfig struct {
	Secret string
}

// AWSConfig holds AWS credentials and S3 bucket names for clip assets.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ClipsBucket          string
	ThumbnailsBucket     string
	PresignExpireMinutes int
}

// ScoreWeights are the composite score weights. Must sum to 1.
type ScoreWeights struct {
	Chat   float64
	Audio  float64
	Viewer float64
}

// DetectionConfig holds signal scoring and moment detection tunables.
// Thresholds and roll/cooldown durations are deployment inputs, not constants.
type DetectionConfig struct {
	WindowSeconds         int
	ChatSaturation        float64 // messages/sec at which the chat sub-score saturates
	ViewerSaturation      float64 // growth % at which the viewer sub-score saturates
	Weights               ScoreWeights
	ChatThreshold         float64 // messages/sec
	AudioThreshold        float64 // excitement [0,1]
	ViewerGrowthThreshold float64 // growth %
	PreRollSeconds        int
	PostRollSeconds       int
	CooldownSeconds       int
}

// PublishConfig holds fan-out dispatch and retry settings.
type PublishConfig struct {
	ConnectorBaseURL      string // per-platform connector endpoints live under <base>/<platform>/posts
	MaxAttempts           int
	BackoffBaseMS         int
	BackoffFactor         float64
	BackoffCapMS          int
	WorkerLimit           int // bounded outbound dispatch concurrency
	AttemptTimeoutSeconds int
	ClipDeadlineSeconds   int // global per-clip fan-out deadline
	SchedulerPollSeconds  int
}

// RendererConfig holds the external clip renderer endpoint.
type RendererConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/hypecast?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "hypecast"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ClipsBucket:          getEnv("AWS_S3_CLIPS_BUCKET", "hypecast-clips"),
			ThumbnailsBucket:     getEnv("AWS_S3_THUMBNAILS_BUCKET", "hypecast-thumbnails"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Detection: DetectionConfig{
			WindowSeconds:    getEnvInt("DETECT_WINDOW_SEC", 60),
			ChatSaturation:   getEnvFloat("DETECT_CHAT_SATURATION", 20),
			ViewerSaturation: getEnvFloat("DETECT_VIEWER_SATURATION", 30),
			Weights: ScoreWeights{
				Chat:   getEnvFloat("DETECT_WEIGHT_CHAT", 0.4),
				Audio:  getEnvFloat("DETECT_WEIGHT_AUDIO", 0.3),
				Viewer: getEnvFloat("DETECT_WEIGHT_VIEWER", 0.3),
			},
			ChatThreshold:         getEnvFloat("DETECT_CHAT_THRESHOLD", 15),
			AudioThreshold:        getEnvFloat("DETECT_AUDIO_THRESHOLD", 0.85),
			ViewerGrowthThreshold: getEnvFloat("DETECT_VIEWER_GROWTH_THRESHOLD", 15),
			PreRollSeconds:        getEnvInt("DETECT_PRE_ROLL_SEC", 30),
			PostRollSeconds:       getEnvInt("DETECT_POST_ROLL_SEC", 30),
			CooldownSeconds:       getEnvInt("DETECT_COOLDOWN_SEC", 60),
		},
		Publish: PublishConfig{
			ConnectorBaseURL:      getEnv("PUBLISH_CONNECTOR_BASE_URL", "http://localhost:9090/connectors"),
			MaxAttempts:           getEnvInt("PUBLISH_MAX_ATTEMPTS", 3),
			BackoffBaseMS:         getEnvInt("PUBLISH_BACKOFF_BASE_MS", 500),
			BackoffFactor:         getEnvFloat("PUBLISH_BACKOFF_FACTOR", 2),
			BackoffCapMS:          getEnvInt("PUBLISH_BACKOFF_CAP_MS", 8000),
			WorkerLimit:           getEnvInt("PUBLISH_WORKER_LIMIT", 8),
			AttemptTimeoutSeconds: getEnvInt("PUBLISH_ATTEMPT_TIMEOUT_SEC", 10),
			ClipDeadlineSeconds:   getEnvInt("PUBLISH_CLIP_DEADLINE_SEC", 120),
			SchedulerPollSeconds:  getEnvInt("PUBLISH_SCHEDULER_POLL_SEC", 1),
		},
		Renderer: RendererConfig{
			BaseURL:        getEnv("RENDERER_BASE_URL", "http://localhost:9091"),
			TimeoutSeconds: getEnvInt("RENDERER_TIMEOUT_SEC", 15),
		},
		Platforms: defaultPlatforms(),
	}

	if raw := os.Getenv("PLATFORM_PROFILES_JSON"); raw != "" {
		var profiles []models.PlatformProfile
		if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
			return nil, fmt.Errorf("parse PLATFORM_PROFILES_JSON: %w", err)
		}
		cfg.Platforms = profiles
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	w := c.Detection.Weights
	if math.Abs(w.Chat+w.Audio+w.Viewer-1) > 1e-9 {
		return fmt.Errorf("detection weights must sum to 1, got %.4f", w.Chat+w.Audio+w.Viewer)
	}
	if c.Detection.WindowSeconds <= 0 {
		return fmt.Errorf("detection window must be positive")
	}
	if c.Publish.MaxAttempts < 1 {
		return fmt.Errorf("publish max attempts must be at least 1")
	}
	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform profile required")
	}
	for _, p := range c.Platforms {
		if p.Name == "" || p.MaxTitleLength <= 0 || p.MaxHashtags < 0 {
			return fmt.Errorf("invalid platform profile %q", p.Name)
		}
	}
	return nil
}

// Profile returns the profile for a platform name, case-insensitive.
func (c *Config) Profile(name string) (models.PlatformProfile, bool) {
	for _, p := range c.Platforms {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return models.PlatformProfile{}, false
}

func defaultPlatforms() []models.PlatformProfile {
	return []models.PlatformProfile{
		{
			Name:           "youtube",
			MaxTitleLength: 100,
			MaxHashtags:    15,
			TitlePrefix:    "🔥",
			DescSuffix:     "\n\nSubscribe for more highlights!",
			AspectRatio:    "16:9",
			Tags:           []string{"shorts", "gaming", "highlights"},
		},
		{
			Name:           "tiktok",
			MaxTitleLength: 150,
			MaxHashtags:    8,
			TitlePrefix:    "🎬",
			DescSuffix:     " #fyp",
			AspectRatio:    "9:16",
			Tags:           []string{"fyp", "viral", "clips"},
		},
		{
			Name:           "instagram",
			MaxTitleLength: 125,
			MaxHashtags:    30,
			TitlePrefix:    "✨",
			DescSuffix:     "\n.\n.\n.",
			AspectRatio:    "9:16",
			Tags:           []string{"reels", "explore", "streamer"},
		},
		{
			Name:           "twitter",
			MaxTitleLength: 280,
			MaxHashtags:    3,
			TitlePrefix:    "",
			DescSuffix:     "",
			AspectRatio:    "16:9",
			Tags:           []string{"clips"},
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
