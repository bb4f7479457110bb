package models

import (
	"strings"
	"time"
)

// CorsConfig is the stored CORS policy. Servers reload it periodically and
// fall back to ALLOWED_ORIGIN while no row exists.
type CorsConfig struct {
	ConfigKey        string    `json:"config_key"`
	AllowedOrigins   string    `json:"allowed_origins"` // Comma-separated
	AllowCredentials bool      `json:"allow_credentials"`
	MaxAge           int       `json:"max_age"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Origins returns the configured origins, trimmed and de-duplicated.
func (c *CorsConfig) Origins() []string {
	if c == nil {
		return nil
	}
	return SplitOrigins(c.AllowedOrigins)
}

// RatelimitConfig is the stored login rate in limiter format ("5-S", "100-M").
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key"`
	Rate      string    `json:"rate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SplitOrigins splits a comma-separated origin list, dropping blanks and repeats.
func SplitOrigins(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
