package main

import (
	"net/http"

	"github.com/benvon/authgate/internal/handlers"
	"github.com/benvon/authgate/internal/middleware"
	"github.com/benvon/authgate/internal/telemetry"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

type routerDeps struct {
	auth      *handlers.AuthHandler
	oauth     *handlers.OAuthHandler
	health    *handlers.HealthChecker
	openapi   *handlers.OpenAPIHandler
	verifier  middleware.TokenVerifier
	cors      *middleware.CORSReloader
	rateLimit *middleware.RateLimitReloader

	enableHSTS bool
	tracing    bool
	logger     *zap.Logger
}

// newRouter builds the full handler chain. The authentication gate wraps
// the whole router, so any path missing from the public allowlist needs a
// bearer token, including unknown ones.
func newRouter(d routerDeps) http.Handler {
	r := mux.NewRouter()
	if d.tracing {
		r.Use(otelmux.Middleware(telemetry.InstrumentationName))
	}

	d.health.RegisterRoutes(r)
	d.openapi.RegisterRoutes(r)

	rateLimitMW := d.rateLimit.Middleware()

	loginRouter := r.NewRoute().Subrouter()
	loginRouter.Use(rateLimitMW)
	d.oauth.RegisterRoutes(loginRouter)

	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.Use(rateLimitMW)
	d.auth.RegisterRoutes(authRouter)

	// Preflights are answered by CORS; this covers OPTIONS without an Origin.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Listed innermost first.
	chain := []func(http.Handler) http.Handler{
		middleware.Auth(d.verifier, middleware.DefaultPublicRoutes(), d.logger),
		middleware.Timeout(middleware.DefaultRequestTimeout),
		middleware.ContentType(d.logger),
		middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, d.logger),
		d.cors.Middleware(),
		middleware.SecurityHeaders(d.enableHSTS),
		middleware.Audit(d.logger),
		middleware.ErrorHandler(d.logger),
		middleware.Logging(d.logger),
	}

	var h http.Handler = r
	for _, mw := range chain {
		h = mw(h)
	}
	return h
}
