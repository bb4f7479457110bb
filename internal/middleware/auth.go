package middleware

import (
	"net/http"
	"strings"

	logpkg "github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/request"
	"go.uber.org/zap"
)

// TokenVerifier verifies bearer tokens. *token.Codec implements it.
type TokenVerifier interface {
	Verify(token string) (*models.Claims, error)
}

// PublicRoutes is the allowlist of paths served without a bearer token.
// Paths ending in "/*" match any path under that prefix. OPTIONS preflight
// requests are always public.
type PublicRoutes struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewPublicRoutes builds an allowlist from paths.
func NewPublicRoutes(paths ...string) *PublicRoutes {
	p := &PublicRoutes{exact: make(map[string]struct{}, len(paths))}
	for _, path := range paths {
		if prefix, ok := strings.CutSuffix(path, "/*"); ok {
			p.prefixes = append(p.prefixes, prefix+"/")
			continue
		}
		p.exact[path] = struct{}{}
	}
	return p
}

// DefaultPublicRoutes lists the login flow, cookie-authenticated token
// exchange, health and docs endpoints.
func DefaultPublicRoutes() *PublicRoutes {
	return NewPublicRoutes(
		"/oauth2/authorization/github",
		"/login/oauth2/code/github",
		"/api/auth/token",
		"/api/auth/logout",
		"/api/auth/oauth-user",
		"/api/auth/openapi.yaml",
		"/api/auth/openapi.json",
		"/healthz",
		"/health",
		"/version",
	)
}

// Allows reports whether r bypasses authentication.
func (p *PublicRoutes) Allows(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if p == nil {
		return false
	}
	if _, ok := p.exact[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// Auth rejects requests outside public without a valid bearer token and
// attaches the verified claims to the request context.
func Auth(verifier TokenVerifier, public *PublicRoutes, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Allows(r) {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := request.BearerToken(r)
			if !ok {
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Missing or malformed Authorization header", logger)
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				logger.Debug("token_verification_failed",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("token", logpkg.MaskToken(tokenString)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token", logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithClaims(r.Context(), claims)))
		})
	}
}
