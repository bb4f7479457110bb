package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	logpkg "github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/request"
	"github.com/benvon/authgate/internal/services/oauth"
	"github.com/benvon/authgate/internal/session"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// loginFailedReason is the only failure reason shown to users.
const loginFailedReason = "login_failed"

// OAuthProvider runs the authorization-code flow against the provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchAttributes(ctx context.Context, token *oauth2.Token) (map[string]any, error)
}

// LoginCompleter turns provider attributes into a session token.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, attrs map[string]any, accessToken string) (*session.Login, error)
}

// OAuthRedirects are the front-end targets of the callback.
type OAuthRedirects struct {
	CallbackURL string
	LoginURL    string
}

// OAuthHandler handles the GitHub login redirect and callback.
type OAuthHandler struct {
	provider   OAuthProvider
	states     oauth.StateStore
	logins     LoginCompleter
	principals session.PrincipalStore
	redirects  OAuthRedirects
	cookies    CookieConfig
	logger     *zap.Logger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(provider OAuthProvider, states oauth.StateStore, logins LoginCompleter, principals session.PrincipalStore, redirects OAuthRedirects, cookies CookieConfig, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthHandler{
		provider:   provider,
		states:     states,
		logins:     logins,
		principals: principals,
		redirects:  redirects,
		cookies:    cookies,
		logger:     logger,
	}
}

// RegisterRoutes registers the login and callback routes.
func (h *OAuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/oauth2/authorization/github", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/login/oauth2/code/github", h.Callback).Methods(http.MethodGet)
}

// Login redirects the browser to GitHub with a fresh single-use state.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue(r.Context())
	if err != nil {
		h.logger.Error("failed_to_issue_oauth_state",
			zap.String("error", logpkg.SanitizeError(err)),
		)
		h.fail(w, r)
		return
	}
	h.cookies.setState(w, state)
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the login and redirects to the front end with the
// token, or to the login page with a generic reason.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Info("oauth_authorization_denied",
			zap.String("reason", logpkg.SanitizeString(providerErr, 100)),
		)
		h.fail(w, r)
		return
	}

	if err := h.checkState(ctx, r); err != nil {
		h.logger.Warn("oauth_state_rejected",
			zap.String("ip", request.ClientIP(r)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		h.fail(w, r)
		return
	}
	h.cookies.clear(w, stateCookieName)

	code := query.Get("code")
	providerToken, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("oauth_code_exchange_failed",
			zap.String("error", logpkg.SanitizeError(err)),
		)
		h.fail(w, r)
		return
	}

	attrs, err := h.provider.FetchAttributes(ctx, providerToken)
	if err != nil {
		h.logger.Warn("oauth_user_fetch_failed",
			zap.String("error", logpkg.SanitizeError(err)),
		)
		h.fail(w, r)
		return
	}

	login, err := h.logins.CompleteLogin(ctx, attrs, providerToken.AccessToken)
	if err != nil {
		fields := []zap.Field{zap.String("error", logpkg.SanitizeError(err))}
		var lf *session.LoginFailedError
		if errors.As(err, &lf) {
			fields = append(fields, zap.String("stage", string(lf.Stage)))
		}
		h.logger.Error("login_failed", fields...)
		h.fail(w, r)
		return
	}

	// The token is already valid; a missing principal only disables the
	// cookie-based token exchange.
	if sid, err := h.principals.Save(ctx, login.User.ID); err != nil {
		h.logger.Warn("failed_to_save_principal",
			zap.Int64("user_id", login.User.ID),
			zap.String("error", logpkg.SanitizeError(err)),
		)
	} else {
		h.cookies.setPrincipal(w, sid)
	}

	http.Redirect(w, r, withQuery(h.redirects.CallbackURL, "token", login.Token), http.StatusFound)
}

func (h *OAuthHandler) checkState(ctx context.Context, r *http.Request) error {
	state := r.URL.Query().Get("state")
	expected := cookieValue(r, stateCookieName)
	if state == "" || expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		return oauth.ErrInvalidState
	}
	return h.states.Consume(ctx, state)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, stateCookieName)
	http.Redirect(w, r, withQuery(h.redirects.LoginURL, "error", loginFailedReason), http.StatusFound)
}

// withQuery returns target with key=value added to its query string.
func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
