// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr        string
	DatabaseURL string
	LogMode     string
	CORSOrigin  string
	Language    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret          string
	TokenTTL           time.Duration
	StudentEmailDomain string

	Classifier ClassifierConfig
	Moderation ModerationConfig
	Triage     TriageConfig
	Realtime   RealtimeConfig
	Telegram   TelegramConfig

	RoleCacheTTL time.Duration
}

type ClassifierConfig struct {
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type ModerationConfig struct {
	ConfidenceThreshold float64
}

type TriageConfig struct {
	Delay time.Duration
}

type RealtimeConfig struct {
	BackoffBase  time.Duration
	MaxAttempts  int
	PollInterval time.Duration
}

// TelegramConfig is optional; alerts are disabled when BotToken is empty.
type TelegramConfig struct {
	BotToken    string
	AlertChatID int64
}

func defaults(v *viper.Viper) {
	v.SetDefault("API_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "host=localhost user=user password=password dbname=campuscare port=5432 sslmode=disable")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("DEFAULT_LANGUAGE", "en")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("TOKEN_TTL", 72*time.Hour)
	v.SetDefault("STUDENT_EMAIL_DOMAIN", "campuscare.local")

	v.SetDefault("CLASSIFIER_ENDPOINT", "https://generativelanguage.googleapis.com")
	v.SetDefault("CLASSIFIER_MODEL", "gemini-1.5-flash")
	v.SetDefault("CLASSIFIER_API_KEY", "")
	v.SetDefault("CLASSIFIER_TIMEOUT", DefaultClassifierTimeout)
	v.SetDefault("CLASSIFIER_MAX_RETRIES", DefaultClassifierRetries)

	v.SetDefault("MODERATION_CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold)
	v.SetDefault("TRIAGE_DELAY", DefaultTriageDelay)

	v.SetDefault("REALTIME_BACKOFF_BASE", DefaultReconnectBase)
	v.SetDefault("REALTIME_MAX_ATTEMPTS", DefaultMaxReconnectAttempts)
	v.SetDefault("REALTIME_POLL_INTERVAL", DefaultPollInterval)

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_ALERT_CHAT_ID", 0)

	v.SetDefault("ROLE_CACHE_TTL", DefaultRoleCacheTTL)
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Addr:        v.GetString("API_ADDR"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		LogMode:     v.GetString("LOG_MODE"),
		CORSOrigin:  v.GetString("CORS_ORIGIN"),
		Language:    strings.ToLower(v.GetString("DEFAULT_LANGUAGE")),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		JWTSecret:          v.GetString("JWT_SECRET"),
		TokenTTL:           v.GetDuration("TOKEN_TTL"),
		StudentEmailDomain: v.GetString("STUDENT_EMAIL_DOMAIN"),

		Classifier: ClassifierConfig{
			Endpoint:   strings.TrimRight(v.GetString("CLASSIFIER_ENDPOINT"), "/"),
			Model:      v.GetString("CLASSIFIER_MODEL"),
			APIKey:     v.GetString("CLASSIFIER_API_KEY"),
			Timeout:    v.GetDuration("CLASSIFIER_TIMEOUT"),
			MaxRetries: v.GetInt("CLASSIFIER_MAX_RETRIES"),
		},
		Moderation: ModerationConfig{
			ConfidenceThreshold: v.GetFloat64("MODERATION_CONFIDENCE_THRESHOLD"),
		},
		Triage: TriageConfig{
			Delay: v.GetDuration("TRIAGE_DELAY"),
		},
		Realtime: RealtimeConfig{
			BackoffBase:  v.GetDuration("REALTIME_BACKOFF_BASE"),
			MaxAttempts:  v.GetInt("REALTIME_MAX_ATTEMPTS"),
			PollInterval: v.GetDuration("REALTIME_POLL_INTERVAL"),
		},
		Telegram: TelegramConfig{
			BotToken:    v.GetString("TELEGRAM_BOT_TOKEN"),
			AlertChatID: v.GetInt64("TELEGRAM_ALERT_CHAT_ID"),
		},
		RoleCacheTTL: v.GetDuration("ROLE_CACHE_TTL"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the workflow cannot run with.
func (c Config) Validate() error {
	if c.Moderation.ConfidenceThreshold <= 0 || c.Moderation.ConfidenceThreshold > 1 {
		return fmt.Errorf("MODERATION_CONFIDENCE_THRESHOLD must be in (0, 1], got %v", c.Moderation.ConfidenceThreshold)
	}
	if c.Triage.Delay <= 0 {
		return fmt.Errorf("TRIAGE_DELAY must be positive, got %v", c.Triage.Delay)
	}
	if c.Realtime.BackoffBase <= 0 || c.Realtime.PollInterval <= 0 {
		return fmt.Errorf("realtime backoff and poll interval must be positive")
	}
	if c.Realtime.MaxAttempts < 0 {
		return fmt.Errorf("REALTIME_MAX_ATTEMPTS must not be negative")
	}
	if c.Classifier.MaxRetries < 0 {
		return fmt.Errorf("CLASSIFIER_MAX_RETRIES must not be negative")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.StudentEmailDomain) == "" {
		return fmt.Errorf("STUDENT_EMAIL_DOMAIN is required")
	}
	return nil
}
