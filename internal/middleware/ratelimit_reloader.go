package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/request"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"
)

// RatelimitConfigSource supplies and seeds the stored rate limit.
type RatelimitConfigSource interface {
	Get(ctx context.Context) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// RateLimitReloader wraps ulule/limiter and periodically reloads rate limit config from the database.
// Without a source the default rate applies for the life of the process.
type RateLimitReloader struct {
	store       limiter.Store
	source      RatelimitConfigSource
	defaultRate string
	log         *zap.Logger
	interval    time.Duration

	mu      sync.RWMutex
	current *stdlibmw.Middleware
	rate    limiter.Rate
}

// NewRateLimitReloader creates a rate limit middleware over store. The
// default rate must parse; a bad stored rate falls back to it.
func NewRateLimitReloader(store limiter.Store, source RatelimitConfigSource, defaultRate string, log *zap.Logger, reloadInterval time.Duration) (*RateLimitReloader, error) {
	if defaultRate == "" {
		defaultRate = defaultRatelimitRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := limiter.NewRateFromFormatted(defaultRate); err != nil {
		return nil, err
	}
	r := &RateLimitReloader{
		store:       store,
		source:      source,
		defaultRate: defaultRate,
		log:         log,
		interval:    reloadInterval,
	}
	r.load(context.Background())
	return r, nil
}

// Middleware wraps next with the current limit. The same limiter counts
// requests across every route it wraps.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			mw := r.current
			r.mu.RUnlock()
			mw.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Rate returns the limit currently enforced.
func (r *RateLimitReloader) Rate() limiter.Rate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

// Start runs the reload loop until ctx is cancelled.
func (r *RateLimitReloader) Start(ctx context.Context) {
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

func (r *RateLimitReloader) load(ctx context.Context) {
	rateStr := r.configuredRate(ctx)

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rateStr),
			zap.String("default_rate", r.defaultRate),
		)
		// Checked in the constructor.
		rate, _ = limiter.NewRateFromFormatted(r.defaultRate)
	}

	instance := limiter.New(r.store, rate)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, req *http.Request) {
			respondErrorJSON(w, req, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded", r.log)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
			r.log.Error("rate_limiter_store_failed", zap.Error(err))
			respondErrorJSON(w, req, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred", r.log)
		}),
	)

	r.mu.Lock()
	r.current = mw
	r.rate = rate
	r.mu.Unlock()
}

// configuredRate reads the stored rate, seeding the default when none is stored.
func (r *RateLimitReloader) configuredRate(ctx context.Context) string {
	if r.source == nil {
		return r.defaultRate
	}
	cfg, err := r.source.Get(ctx)
	if err != nil {
		r.log.Warn("failed_to_load_ratelimit_config_from_db_using_default",
			zap.Error(err),
			zap.String("default_rate", r.defaultRate),
		)
		return r.defaultRate
	}
	if cfg != nil && cfg.Rate != "" {
		return cfg.Rate
	}
	if err := r.source.Set(ctx, &models.RatelimitConfig{Rate: r.defaultRate}); err != nil {
		r.log.Error("failed_to_save_default_ratelimit_config",
			zap.Error(err),
			zap.String("default_rate", r.defaultRate),
		)
	}
	return r.defaultRate
}
