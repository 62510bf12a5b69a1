package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Session pool
	MaxSessions     int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	AuthDir         string
	CacheDir        string
	DeviceName      string

	// Bulk dispatch
	DefaultDelay       time.Duration
	MaxDelay           time.Duration
	RetryAttempts      int // surfaced to operators only, dispatch is single-attempt
	Spintax            bool
	DefaultCountryCode string
	JobHistorySize     int
	MediaMaxBytes      int64

	AppDatabaseURL string

	WebhookURL    string
	WebhookSecret string
	WebhookEvents []string

	JWTSecret      string
	JWTTokenExpiry time.Duration

	CORSAllowOrigins []string
	RateLimit        int
	RateBurst        int
	RateWindow       time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads .env (ignored when missing, e.g. in production) and the process
// environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "2121"),

		MaxSessions:     GetEnvAsInt("MAX_SESSIONS", 10),
		IdleTimeout:     GetEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		CleanupInterval: GetEnvAsDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		AuthDir:         getEnv("AUTH_DIR", "./data/auth"),
		CacheDir:        getEnv("CACHE_DIR", "./data/cache"),
		DeviceName:      getEnv("DEVICE_NAME", "GOWA Blast"),

		DefaultDelay:       GetEnvAsDuration("DISPATCH_DEFAULT_DELAY", 3*time.Second),
		MaxDelay:           GetEnvAsDuration("DISPATCH_MAX_DELAY", 60*time.Second),
		RetryAttempts:      GetEnvAsInt("DISPATCH_RETRY_ATTEMPTS", 0),
		Spintax:            GetEnvAsBool("DISPATCH_SPINTAX", false),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "216"),
		JobHistorySize:     GetEnvAsInt("JOB_HISTORY_SIZE", 256),
		MediaMaxBytes:      int64(GetEnvAsInt("MEDIA_MAX_BYTES", 16<<20)),

		AppDatabaseURL: os.Getenv("APP_DATABASE_URL"),

		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		WebhookEvents: splitList(getEnv("WEBHOOK_EVENTS", "DISPATCH_FINISHED,SESSION_CLOSED")),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTTokenExpiry: GetEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", 24*time.Hour),

		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		RateLimit:        GetEnvAsInt("RATE_LIMIT_PER_SECOND", 10),
		RateBurst:        GetEnvAsInt("RATE_LIMIT_BURST", 10),
		RateWindow:       time.Duration(GetEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 3)) * time.Minute,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: GetEnvAsBool("LOG_PRETTY", false),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvAsInt returns fallback when the variable is unset, malformed or negative.
func GetEnvAsInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// GetEnvAsDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func GetEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func GetEnvAsBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
