package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benvon/authgate/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CorsConfigSource supplies the stored CORS configuration. A nil config
// with a nil error means none is stored.
type CorsConfigSource interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
}

// CORSReloader wraps rs/cors and periodically reloads CORS config from the database.
// Without a source, or when nothing is stored, it allows the fallback origin.
type CORSReloader struct {
	source   CorsConfigSource
	fallback []string
	log      *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	current *cors.Cors
	origins []string
}

// NewCORSReloader creates a CORS middleware that loads config from source and hot-reloads it.
func NewCORSReloader(source CorsConfigSource, fallbackOrigin string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	r := &CORSReloader{
		source:   source,
		fallback: models.SplitOrigins(fallbackOrigin),
		log:      log,
		interval: reloadInterval,
	}
	r.load(context.Background())
	return r
}

// Middleware wraps next with the current CORS policy.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			c := r.current
			r.mu.RUnlock()
			c.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Origins returns the origins currently allowed.
func (r *CORSReloader) Origins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.origins...)
}

// Start runs the reload loop until ctx is cancelled.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 || r.source == nil {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

func (r *CORSReloader) load(ctx context.Context) {
	origins := r.fallback
	allowCreds := true
	maxAge := 86400

	if r.source != nil {
		cfg, err := r.source.Get(ctx)
		switch {
		case err != nil:
			r.log.Warn("failed_to_load_cors_config_using_fallback", zap.Error(err))
		case cfg != nil:
			if stored := cfg.Origins(); len(stored) > 0 {
				origins = stored
			}
			allowCreds = cfg.AllowCredentials
			maxAge = cfg.MaxAge
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
	})

	r.mu.Lock()
	r.current = c
	r.origins = origins
	r.mu.Unlock()
}
