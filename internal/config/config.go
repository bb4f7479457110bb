package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/authgate/internal/validation"
	"github.com/caarlos0/env/v11"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string
	ServerPort  string `validate:"required,numeric"`
	BaseURL     string `validate:"required,url"`

	// AllowedOrigin is the front-end origin: CORS fallback and the only
	// origin login redirects may point to.
	AllowedOrigin       string `validate:"required,origin"`
	FrontendCallbackURL string `validate:"required,url"`
	FrontendLoginURL    string `validate:"required,url"`

	JWTSecret     string        `validate:"required,min=32"`
	JWTExpiration time.Duration `validate:"gte=1s"`

	GithubClientID     string        `validate:"required"`
	GithubClientSecret string        `validate:"required"`
	GithubRedirectURL  string        `validate:"required,url"`
	GithubAPIURL       string        `validate:"required,url"`
	GithubEmailTimeout time.Duration `validate:"gt=0"`
	GithubReposTimeout time.Duration `validate:"gt=0"`

	RedisURL      string `validate:"required"`
	RabbitMQURL   string
	RateLimit     string `validate:"required"`
	EnableHSTS    bool
	ServerDebug   bool
	OTELEnabled   bool
	OTELEndpoint  string
	PrincipalTTL  time.Duration `validate:"gt=0"`
	OAuthStateTTL time.Duration `validate:"gt=0"`
}

// rawEnv mirrors the environment. Values that default to other values
// (front-end URLs, redirect URL) are derived after parsing.
type rawEnv struct {
	DatabaseURL         string        `env:"DATABASE_URL"`
	ServerPort          string        `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL             string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	AllowedOrigin       string        `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`
	FrontendCallbackURL string        `env:"FRONTEND_CALLBACK_URL"`
	FrontendLoginURL    string        `env:"FRONTEND_LOGIN_URL"`
	JWTSecret           string        `env:"JWT_SECRET"`
	JWTExpiration       time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`
	GithubClientID      string        `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret  string        `env:"GITHUB_CLIENT_SECRET"`
	GithubRedirectURL   string        `env:"GITHUB_REDIRECT_URL"`
	GithubAPIURL        string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	GithubEmailTimeout  time.Duration `env:"GITHUB_EMAIL_TIMEOUT" envDefault:"5s"`
	GithubReposTimeout  time.Duration `env:"GITHUB_REPOS_TIMEOUT" envDefault:"3s"`
	RedisURL            string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RabbitMQURL         string        `env:"RABBITMQ_URL"`
	RateLimit           string        `env:"RATE_LIMIT" envDefault:"5-S"`
	EnableHSTS          bool          `env:"ENABLE_HSTS"`
	ServerDebug         bool          `env:"SERVER_DEBUG_MODE"`
	OTELEnabled         bool          `env:"OTEL_ENABLED"`
	OTELEndpoint        string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	PrincipalTTL        time.Duration `env:"PRINCIPAL_TTL" envDefault:"10m"`
	OAuthStateTTL       time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom loads configuration from the given environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	var raw rawEnv
	err := env.ParseWithOptions(&raw, env.Options{
		Environment: environ,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseDuration,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(raw.BaseURL), "/")
	origin := strings.TrimRight(strings.TrimSpace(raw.AllowedOrigin), "/")

	cfg := &Config{
		DatabaseURL:         strings.TrimSpace(raw.DatabaseURL),
		ServerPort:          raw.ServerPort,
		BaseURL:             baseURL,
		AllowedOrigin:       origin,
		FrontendCallbackURL: orDefault(raw.FrontendCallbackURL, origin+"/oauth-callback"),
		FrontendLoginURL:    orDefault(raw.FrontendLoginURL, origin+"/login"),
		JWTSecret:           raw.JWTSecret,
		JWTExpiration:       raw.JWTExpiration,
		GithubClientID:      strings.TrimSpace(raw.GithubClientID),
		GithubClientSecret:  strings.TrimSpace(raw.GithubClientSecret),
		GithubRedirectURL:   orDefault(raw.GithubRedirectURL, baseURL+"/login/oauth2/code/github"),
		GithubAPIURL:        strings.TrimRight(raw.GithubAPIURL, "/"),
		GithubEmailTimeout:  raw.GithubEmailTimeout,
		GithubReposTimeout:  raw.GithubReposTimeout,
		RedisURL:            raw.RedisURL,
		RabbitMQURL:         strings.TrimSpace(raw.RabbitMQURL),
		RateLimit:           strings.TrimSpace(raw.RateLimit),
		EnableHSTS:          raw.EnableHSTS,
		ServerDebug:         raw.ServerDebug,
		OTELEnabled:         raw.OTELEnabled,
		OTELEndpoint:        raw.OTELEndpoint,
		PrincipalTTL:        raw.PrincipalTTL,
		OAuthStateTTL:       raw.OAuthStateTTL,
	}

	if err := validation.Validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Tokens travel in the redirect query string, so redirects may only
	// target the configured front-end origin.
	if !validation.SameOrigin(cfg.FrontendCallbackURL, cfg.AllowedOrigin) {
		return nil, fmt.Errorf("FRONTEND_CALLBACK_URL must be on ALLOWED_ORIGIN %s", cfg.AllowedOrigin)
	}
	if !validation.SameOrigin(cfg.FrontendLoginURL, cfg.AllowedOrigin) {
		return nil, fmt.Errorf("FRONTEND_LOGIN_URL must be on ALLOWED_ORIGIN %s", cfg.AllowedOrigin)
	}

	return cfg, nil
}

func orDefault(value, defaultValue string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("24h") or a bare integer of milliseconds.
func parseDuration(value string) (any, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}
