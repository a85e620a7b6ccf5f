// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DevEnv = "dev"
	ProEnv = "pro"
)

type Config struct {
	Environment string

	// Empty means AutoTLS on :443.
	AddressListen string
	WhitelistHost string
	CertCacheDir  string

	JWTSecret string
	TokenTTL  time.Duration

	DBDriver      string // sqlite or mongo
	DBURL         string
	MongoDatabase string

	SessionStore string // sql or redis
	RedisURL     string
	SessionTTL   time.Duration

	EnableSignup       bool
	LoginRatePerMinute int
	CORSAllowedOrigins []string
	LogLevel           string
	PageSize           int
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", ProEnv)
	cfg := &Config{
		Environment:        env,
		AddressListen:      getEnv("ADDRESS_LISTEN", ""),
		WhitelistHost:      getEnv("WHITELIST_HOST", ""),
		CertCacheDir:       getEnv("CERT_CACHE_DIR", "/var/www/.cache"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DBURL:              getEnv("DB_URL", ""),
		MongoDatabase:      getEnv("MONGO_DATABASE", "scribe"),
		SessionStore:       getEnv("SESSION_STORE", "sql"),
		RedisURL:           getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		EnableSignup:       os.Getenv("ENABLE_SIGNUP") == "true",
		LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PageSize:           getEnvAsInt("PAGE_SIZE", 5),
	}

	if env == DevEnv {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "unsecure"
		}
		if cfg.AddressListen == "" {
			cfg.AddressListen = ":8080"
		}
	}
	if cfg.DBURL == "" && cfg.DBDriver == "sqlite" {
		cfg.DBURL = "./scribe.db?_pragma=foreign_keys(1)"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Environment == DevEnv
}

// SignupAllowed mirrors the ENABLE_SIGNUP gate; dev always allows it.
func (c *Config) SignupAllowed() bool {
	return c.IsDev() || c.EnableSignup
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("no secret defined: JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "sqlite":
	case "mongo":
		if c.DBURL == "" {
			return errors.New("DB_URL is required when DB_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.SessionStore {
	case "sql":
		if c.DBDriver != "sqlite" {
			return errors.New("SESSION_STORE=sql requires DB_DRIVER=sqlite")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("unsupported SESSION_STORE %q", c.SessionStore)
	}
	if c.SessionTTL <= 0 || c.TokenTTL <= 0 {
		return errors.New("SESSION_TTL and TOKEN_TTL must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("PAGE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
