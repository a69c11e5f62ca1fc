package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const envDevelopment = "development"

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	FrontendURL string `env:"FRONTEND_URL" default:"http://localhost:3000"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURI  string `env:"DISCORD_REDIRECT_URI"`

	SessionSecret      string `env:"SESSION_SECRET"`
	JWTSecret          string `env:"JWT_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	// CookieDomain is the canonical domain of the session cookies,
	// SSOCookieDomain the partner domain of the *_tokenized SSO cookies.
	CookieDomain    string `env:"COOKIE_DOMAIN"`
	SSOCookieDomain string `env:"SSO_COOKIE_DOMAIN"`

	SessionMaxAge  time.Duration `env:"SESSION_MAX_AGE" default:"720h"` // 30 days
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" default:"15m"`
	TokenCacheTTL  time.Duration `env:"TOKEN_CACHE_TTL" default:"10m"`
}

// IsDevelopment reports whether the service runs with development defaults
// (in-memory session store, plaintext Discord tokens).
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == envDevelopment
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DISCORD_CLIENT_ID", cfg.DiscordClientID},
		{"DISCORD_CLIENT_SECRET", cfg.DiscordClientSecret},
		{"DISCORD_REDIRECT_URI", cfg.DiscordRedirectURI},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"JWT_SECRET", cfg.JWTSecret},
		{"COOKIE_DOMAIN", cfg.CookieDomain},
		{"SSO_COOKIE_DOMAIN", cfg.SSOCookieDomain},
	}
	if !cfg.IsDevelopment() {
		required = append(required,
			struct{ name, value string }{"DATABASE_URL", cfg.DatabaseURL},
			struct{ name, value string }{"TOKEN_ENCRYPTION_KEY", cfg.TokenEncryptionKey},
		)
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if _, err := url.ParseRequestURI(cfg.FrontendURL); err != nil {
		return fmt.Errorf("FRONTEND_URL must be an absolute URL: %w", err)
	}

	if cfg.SessionMaxAge <= 0 || cfg.AccessTokenTTL <= 0 {
		return errors.New("SESSION_MAX_AGE and ACCESS_TOKEN_TTL must be positive")
	}

	if !cfg.IsDevelopment() && cfg.DatabaseURL != "" {
		switch mode := sslMode(cfg.DatabaseURL); mode {
		case "disable", "allow":
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
