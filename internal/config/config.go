// Package config provides environment configuration for the API server.
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

// Config holds all configuration for the application.
type Config struct {
	Server    Server
	Database  Database
	NATS      NATS
	Auth      Auth
	LLM       LLM
	Chat      Chat
	RateLimit RateLimit

	// RedisURL backs the typing store when set; otherwise it lives in memory.
	RedisURL string

	CORSAllowedOrigins []string
	LogLevel           string
	Tracing            Tracing
}

// Server settings.
type Server struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Database settings.
type Database struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// NATS connection settings.
type NATS struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// Auth settings.
type Auth struct {
	JWTSecret     string
	WebhookSecret string
}

// LLM provider keys. Provider picks the preferred one when both are set.
type LLM struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Provider        string
}

// Chat rules.
type Chat struct {
	EditWindow   time.Duration
	TypingWindow time.Duration
}

// RateLimit settings. A zero Requests disables limiting.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Tracing settings.
type Tracing struct {
	Enabled  bool
	Endpoint string
}

var supportedDrivers = map[string]bool{"sqlite": true, "mysql": true, "postgres": true}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real env vars win.
// Malformed values are reported rather than silently replaced.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var e env
	cfg := &Config{
		Server: Server{
			Port:         e.str("PORT", "8080"),
			ReadTimeout:  e.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: e.duration("SERVER_WRITE_TIMEOUT", 0),
		},
		Database: Database{
			Driver:       strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			DSN:          e.str("DB_DSN", "chat.db"),
			MaxOpenConns: e.int("DB_MAX_OPEN_CONNS", 20),
		},
		NATS: NATS{
			URL:      e.str("NATS_URL", "nats://localhost:4222"),
			CAFile:   e.str("NATS_CA_FILE", ""),
			CertFile: e.str("NATS_CERT_FILE", ""),
			KeyFile:  e.str("NATS_KEY_FILE", ""),
			Token:    e.str("NATS_TOKEN", ""),
		},
		Auth: Auth{
			JWTSecret:     e.str("JWT_SECRET", "development-secret-change-in-production"),
			WebhookSecret: e.str("WEBHOOK_SECRET", ""),
		},
		LLM: LLM{
			AnthropicAPIKey: e.str("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    e.str("OPENAI_API_KEY", ""),
			Provider:        strings.ToLower(e.str("DEFAULT_LLM", "anthropic")),
		},
		Chat: Chat{
			EditWindow:   e.duration("EDIT_WINDOW", 48*time.Hour),
			TypingWindow: e.duration("TYPING_WINDOW", 5*time.Second),
		},
		RateLimit: RateLimit{
			Requests: e.int("RATE_LIMIT_REQUESTS", 300),
			Window:   e.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
		RedisURL:           e.str("REDIS_URL", ""),
		CORSAllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),
		LogLevel:           e.str("LOG_LEVEL", "info"),
		Tracing: Tracing{
			Enabled:  e.bool("TRACING_ENABLED", false),
			Endpoint: e.str("TRACING_ENDPOINT", "localhost:4318"),
		},
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if !supportedDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.Database.Driver))
	}
	if c.Chat.EditWindow <= 0 {
		errs = append(errs, errors.New("EDIT_WINDOW: must be positive"))
	}
	if c.Chat.TypingWindow <= 0 {
		errs = append(errs, errors.New("TYPING_WINDOW: must be positive"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS: must not be negative"))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW: must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET: required"))
	}
	return errs
}

// env reads typed variables and collects parse failures.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return i
}

func (e *env) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (e *env) list(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
