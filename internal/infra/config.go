package infra

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv          string
	Port            string
	DatabaseURL     string
	StoragePath     string
	CredentialsFile string

	GoogleAPIKey     string
	GoogleBaseURL    string
	DashScopeAPIKey  string
	DashScopeBaseURL string

	TickInterval      time.Duration
	ConcurrencyLimit  int
	RateLimitCount    int
	RateLimitWindow   time.Duration
	MaxRetries        int
	VideoPollInterval time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the credential
// store runs purely from environment keys and the watched credentials file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		CredentialsFile: os.Getenv("CREDENTIALS_FILE"),

		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		GoogleBaseURL:    getEnv("GOOGLE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),

		TickInterval:      time.Millisecond * time.Duration(getEnvInt("SCHEDULER_TICK_MS", 1000)),
		ConcurrencyLimit:  getEnvInt("SCHEDULER_CONCURRENCY", 4),
		RateLimitCount:    getEnvInt("SCHEDULER_RATE_LIMIT", 4),
		RateLimitWindow:   time.Millisecond * time.Duration(getEnvInt("SCHEDULER_RATE_WINDOW_MS", 60000)),
		MaxRetries:        getEnvInt("SCHEDULER_MAX_RETRIES", 3),
		VideoPollInterval: time.Millisecond * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL_MS", 10000)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
