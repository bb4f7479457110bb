package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benvon/authgate/internal/config"
	"github.com/benvon/authgate/internal/database"
	"github.com/benvon/authgate/internal/directory"
	"github.com/benvon/authgate/internal/events"
	"github.com/benvon/authgate/internal/handlers"
	"github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/middleware"
	"github.com/benvon/authgate/internal/services/github"
	"github.com/benvon/authgate/internal/services/oauth"
	"github.com/benvon/authgate/internal/session"
	"github.com/benvon/authgate/internal/telemetry"
	"github.com/benvon/authgate/internal/token"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	configReloadInterval = time.Minute
	rabbitMQAttempts     = 5
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// A local .env is optional; variables already set win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.ServerDebug || *debugFlag)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.String("server_port", cfg.ServerPort),
		zap.String("allowed_origin", cfg.AllowedOrigin),
		zap.Bool("database_configured", cfg.DatabaseURL != ""),
		zap.Bool("rabbitmq_configured", cfg.RabbitMQURL != ""),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracing := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.Options{
			ServiceName:    "authgate",
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(ctx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	// Without DATABASE_URL users live in memory and runtime config falls
	// back to environment defaults.
	checks := map[string]handlers.Check{"database": nil, "redis": nil, "rabbitmq": nil}
	var (
		store        directory.Store
		corsSource   middleware.CorsConfigSource
		limitsSource middleware.RatelimitConfigSource
	)
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_database")

		store = database.NewUserStore(db)
		corsSource = database.NewCorsConfigRepository(db)
		limitsSource = database.NewRatelimitConfigRepository(db)
		checks["database"] = db.Ping
	} else {
		zapLogger.Warn("database_not_configured_using_memory_directory")
		store = directory.NewMemoryStore()
	}

	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")
	checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		p, err := events.Connect(context.Background(), cfg.RabbitMQURL, rabbitMQAttempts, zapLogger)
		if err != nil {
			// Login events are best effort.
			zapLogger.Error("failed_to_connect_to_rabbitmq_events_disabled", zap.Error(err))
		} else {
			publisher = p
			checks["rabbitmq"] = p.HealthCheck
			defer func() {
				if err := p.Close(); err != nil {
					zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
				}
			}()
		}
	}

	codec, err := token.NewCodec(token.Config{
		SigningKey: []byte(cfg.JWTSecret),
		Lifetime:   cfg.JWTExpiration,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_create_token_codec", zap.Error(err))
	}

	resolver := github.NewResolver(github.Config{
		APIURL:       cfg.GithubAPIURL,
		EmailTimeout: cfg.GithubEmailTimeout,
		ReposTimeout: cfg.GithubReposTimeout,
	}, zapLogger)
	dir := directory.New(store, zapLogger)
	issuer := session.NewIssuer(resolver, dir, codec,
		session.WithPublisher(publisher),
		session.WithLogger(zapLogger),
	)

	oauthClient := oauth.NewClient(oauth.Config{
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
		RedirectURL:  cfg.GithubRedirectURL,
		APIURL:       cfg.GithubAPIURL,
	})
	states := oauth.NewRedisStateStore(redisClient, cfg.OAuthStateTTL)
	principals := session.NewRedisPrincipalStore(redisClient, cfg.PrincipalTTL)
	cookies := handlers.CookieConfig{
		Secure:       strings.HasPrefix(cfg.BaseURL, "https://"),
		PrincipalTTL: cfg.PrincipalTTL,
		StateTTL:     cfg.OAuthStateTTL,
	}

	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_description", zap.Error(err))
	}

	limiterStore, err := middleware.NewRedisLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter_store", zap.Error(err))
	}
	rateLimitReloader, err := middleware.NewRateLimitReloader(limiterStore, limitsSource, cfg.RateLimit, zapLogger, configReloadInterval)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader", zap.Error(err))
	}
	corsReloader := middleware.NewCORSReloader(corsSource, cfg.AllowedOrigin, zapLogger, configReloadInterval)

	handler := newRouter(routerDeps{
		auth: handlers.NewAuthHandler(issuer, dir, principals, cookies, zapLogger),
		oauth: handlers.NewOAuthHandler(oauthClient, states, issuer, principals, handlers.OAuthRedirects{
			CallbackURL: cfg.FrontendCallbackURL,
			LoginURL:    cfg.FrontendLoginURL,
		}, cookies, zapLogger),
		health:     handlers.NewHealthChecker(checks, version),
		openapi:    openAPIHandler,
		verifier:   codec,
		cors:       corsReloader,
		rateLimit:  rateLimitReloader,
		enableHSTS: cfg.EnableHSTS,
		tracing:    tracing,
		logger:     zapLogger,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   20 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	defer reloadCancel()
	go corsReloader.Start(reloadCtx)
	go rateLimitReloader.Start(reloadCtx)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	reloadCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
