package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Provider
	SupabaseURL          string
	SupabaseAnonKey      string
	DocumentBucket       string
	ProviderTimeout      time.Duration
	ProviderAllowPrivate bool

	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// Signup
	PasswordRequireSymbol bool
	MaxUploadSize         int64
	FlowIdleTimeout       time.Duration

	// Rate Limit
	RateLimitAuth int

	// Journal
	JournalRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	if cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DocumentBucket = getEnvString("DOCUMENT_BUCKET", "business_documents")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 0)
	cfg.ProviderAllowPrivate = getEnvBool("PROVIDER_ALLOW_PRIVATE", false)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.PasswordRequireSymbol = getEnvBool("PASSWORD_REQUIRE_SYMBOL", false)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 5000000)
	cfg.FlowIdleTimeout = getEnvDuration("FLOW_IDLE_TIMEOUT", 30*time.Minute)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.JournalRetentionDays = getEnvInt("JOURNAL_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	if err := validateProviderURL(cfg.SupabaseURL, cfg.ProviderAllowPrivate); err != nil {
		return nil, fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}

	return cfg, nil
}

// validateProviderURL はプロバイダーURLの形式を検証する。
// ローカル開発（PROVIDER_ALLOW_PRIVATE）以外ではhttpsを必須とする。
func validateProviderURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if allowPrivate {
			return nil
		}
		return fmt.Errorf("https is required (set PROVIDER_ALLOW_PRIVATE for local development)")
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
