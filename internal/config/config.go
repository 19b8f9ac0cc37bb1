package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ServerAddr  string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	Assistant AssistantConfig
	Jobs      JobsConfig
	Credits   CreditsConfig
	Analytics AnalyticsConfig
}

// AssistantConfig carries the model-service credentials and run budgets.
type AssistantConfig struct {
	APIKey       string
	DefaultModel string

	ChatAssistantID         string
	QuickGenAssistantID     string
	GuidedGenAssistantID    string
	SurveyUpdateAssistantID string
	AnalyticsAssistantID    string

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// JobsConfig controls the background worker pool.
type JobsConfig struct {
	Workers           int
	EnqueueTimeout    time.Duration
	RecoveryThreshold time.Duration
}

// CreditsConfig controls the tenant credit economy.
type CreditsConfig struct {
	CycleMonths int
}

// AnalyticsConfig carries the sample-size gates for AI analytics.
type AnalyticsConfig struct {
	OpenEndedSkipBelow    int
	OpenEndedCautionBelow int
	QuantSkipBelow        int
	QuantCautionBelow     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "pulseform"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		ServerAddr:  getenv("SERVER_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pulseform"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Assistant: AssistantConfig{
			APIKey:       strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			DefaultModel: getenv("AI_DEFAULT_MODEL", "gpt-4o"),

			ChatAssistantID:         strings.TrimSpace(getenv("AI_ASSISTANT_CHAT", "")),
			QuickGenAssistantID:     strings.TrimSpace(getenv("AI_ASSISTANT_QUICK_GEN", "")),
			GuidedGenAssistantID:    strings.TrimSpace(getenv("AI_ASSISTANT_GUIDED_GEN", "")),
			SurveyUpdateAssistantID: strings.TrimSpace(getenv("AI_ASSISTANT_SURVEY_UPDATE", "")),
			AnalyticsAssistantID:    strings.TrimSpace(getenv("AI_ASSISTANT_ANALYTICS", "")),

			PollInterval: getenvDuration("AI_POLL_INTERVAL", 2*time.Second),
			PollTimeout:  getenvDuration("AI_POLL_TIMEOUT", 150*time.Second),
		},
		Jobs: JobsConfig{
			Workers:           getenvInt("JOB_WORKERS", 4),
			EnqueueTimeout:    getenvDuration("JOB_ENQUEUE_TIMEOUT", 5*time.Second),
			RecoveryThreshold: getenvDuration("JOB_RECOVERY_THRESHOLD", 15*time.Minute),
		},
		Credits: CreditsConfig{
			CycleMonths: getenvInt("CREDIT_CYCLE_MONTHS", 1),
		},
		Analytics: AnalyticsConfig{
			OpenEndedSkipBelow:    getenvInt("ANALYTICS_OPEN_SKIP_BELOW", 30),
			OpenEndedCautionBelow: getenvInt("ANALYTICS_OPEN_CAUTION_BELOW", 100),
			QuantSkipBelow:        getenvInt("ANALYTICS_QUANT_SKIP_BELOW", 50),
			QuantCautionBelow:     getenvInt("ANALYTICS_QUANT_CAUTION_BELOW", 200),
		},
	}
}

// JobWallClock is the per-job execution budget: slightly above the model
// polling budget so the facade times out before the runner does.
func (c JobsConfig) JobWallClock(pollTimeout time.Duration) time.Duration {
	return time.Duration(float64(pollTimeout) * 1.2)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
