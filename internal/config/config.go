package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string
	Port   int

	// PublicBaseURL is the externally visible origin used when building
	// webhook/script URLs for the setup wizard.
	PublicBaseURL string

	// Token cipher
	SecretKey     []byte // 32 bytes, from 64-char hex
	TokenVersion  int    // 1 = expiring, 2 = permanent (default)
	TokenRandomIV bool   // v2 only; v1 always uses a random IV
	TokenMaxAge   time.Duration

	// Identity derivation
	DefaultCountryCode string

	// Meta Conversions API
	MetaBaseURL string
	MetaVersion string
	MetaTimeout time.Duration

	// Operator auth (setup/stats endpoints)
	OperatorJWTSecret string
	OperatorJWTIssuer string

	// Postgres delivery log (optional; empty disables)
	DBDSN string

	// Redis
	RedisAddr string
	RedisPass string
	RedisDB   int

	// Rate limit
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	// RabbitMQ (optional; empty disables publishing)
	RabbitURL      string
	RabbitExchange string

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.Port = getInt("PORT", 8080)
	cfg.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/")

	// --- Token cipher
	rawKey := getEnv("SECRET_KEY", "")
	if rawKey == "" {
		return nil, fmt.Errorf("missing SECRET_KEY (64-char hex, generate with: openssl rand -hex 32)")
	}
	key, err := hex.DecodeString(rawKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("SECRET_KEY must be 64 hex characters (32 bytes)")
	}
	cfg.SecretKey = key
	cfg.TokenVersion = getInt("TOKEN_VERSION", 2)
	if cfg.TokenVersion != 1 && cfg.TokenVersion != 2 {
		return nil, fmt.Errorf("TOKEN_VERSION must be 1 or 2")
	}
	cfg.TokenRandomIV = getBool("TOKEN_RANDOM_IV", false)
	cfg.TokenMaxAge = getDuration("TOKEN_MAX_AGE", 365*24*time.Hour)

	// --- Identity derivation
	cfg.DefaultCountryCode = getEnv("DEFAULT_COUNTRY_CODE", "34")

	// --- Meta API
	cfg.MetaVersion = getEnv("META_API_VERSION", "v23.0")
	cfg.MetaBaseURL = strings.TrimRight(getEnv("META_API_BASE_URL", "https://graph.facebook.com"), "/")
	cfg.MetaTimeout = getDuration("META_API_TIMEOUT", 15*time.Second)

	// --- Operator auth
	cfg.OperatorJWTSecret = getEnv("OPERATOR_JWT_SECRET", "")
	cfg.OperatorJWTIssuer = getEnv("OPERATOR_JWT_ISSUER", "")
	if cfg.AppEnv != "dev" && cfg.OperatorJWTSecret == "" {
		return nil, fmt.Errorf("missing OPERATOR_JWT_SECRET (required when APP_ENV != dev)")
	}

	// --- Postgres: DATABASE_URL only; the delivery log is optional.
	cfg.DBDSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	// --- Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
	cfg.RedisPass = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)

	// --- Rate limit
	cfg.RLEnabled = getBool("RL_ENABLED", true)
	cfg.RLLimit = getInt("RL_REQUESTS_LIMIT", 100)
	cfg.RLWindow = time.Duration(getInt("RL_WINDOW_SECONDS", 60)) * time.Second

	// --- RabbitMQ
	cfg.RabbitURL = strings.TrimSpace(os.Getenv("RABBITMQ_URL"))
	cfg.RabbitExchange = getEnv("RABBITMQ_EXCHANGE", "conversions.events")

	// --- Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		// unparseable values fall back like the other getters
		return def
	}
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
