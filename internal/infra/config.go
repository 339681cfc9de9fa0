package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	// Identity provider: the endpoint a bearer credential is exchanged with.
	AuthVerifyURL string

	// Moderation provider.
	ModerationBaseURL string
	ModerationAPIKey  string
	ModerationModel   string

	// Generation provider.
	GenBaseURL string
	GenAPIKey  string
	GenModel   string

	// Per-user request rate limiting (rolling window).
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Free tier: successful generations allowed per trailing 7 days.
	FreeWeeklyCap int

	// Job polling cadence and hard deadline.
	PollInterval time.Duration
	PollDeadline time.Duration

	// Billing (credit packs).
	StripeKey           string
	StripeWebhookSecret string
	StripePriceID       string
	CreditsPerPurchase  int
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	AllowedOrigins []string
	GeoIPDBPath    string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		AuthVerifyURL: os.Getenv("AUTH_VERIFY_URL"),

		ModerationBaseURL: getEnv("MODERATION_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		ModerationAPIKey:  os.Getenv("MODERATION_API_KEY"),
		ModerationModel:   getEnv("MODERATION_MODEL", "qwen-vl-max"),

		GenBaseURL: getEnv("GEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		GenAPIKey:  os.Getenv("GEN_API_KEY"),
		GenModel:   getEnv("GEN_MODEL", "wanx2.1-imageedit"),

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 10),
		RateLimitWindow: time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),

		FreeWeeklyCap: getEnvInt("FREE_WEEKLY_CAP", 2),

		PollInterval: time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 1000)),
		PollDeadline: time.Second * time.Duration(getEnvInt("POLL_DEADLINE_SECONDS", 60)),

		StripeKey:           os.Getenv("STRIPE_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),
		CreditsPerPurchase:  getEnvInt("CREDITS_PER_PURCHASE", 10),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 90)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.AuthVerifyURL == "" {
		return nil, fmt.Errorf("AUTH_VERIFY_URL is required")
	}
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit window and cap must be positive")
	}
	if cfg.PollInterval <= 0 || cfg.PollDeadline <= cfg.PollInterval {
		return nil, fmt.Errorf("poll deadline must exceed poll interval")
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
