package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/authgate/internal/directory"
	logpkg "github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/request"
	"github.com/benvon/authgate/internal/session"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TokenIssuer issues tokens for authenticated principals.
type TokenIssuer interface {
	IssueFor(ctx context.Context, p session.Principal) (string, error)
}

// UserLookup reads directory rows.
type UserLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// UserProfile is the public view of a directory row.
type UserProfile struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Picture     string `json:"picture,omitempty"`
	GithubID    *int64 `json:"githubId,omitempty"`
	GithubLogin string `json:"githubLogin,omitempty"`
	PublicRepos *int   `json:"publicRepos,omitempty"`
}

func profileOf(u *models.User) UserProfile {
	p := UserProfile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Picture:     u.Picture,
		GithubID:    u.GithubID,
		PublicRepos: u.PublicRepos,
	}
	if u.GithubLogin != nil {
		p.GithubLogin = *u.GithubLogin
	}
	return p
}

// OAuthUser is the provider profile of the current OAuth2 session principal.
type OAuthUser struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Picture     string `json:"picture,omitempty"`
	GithubID    *int64 `json:"githubId,omitempty"`
	GithubLogin string `json:"githubLogin,omitempty"`
}

// TokenResponse carries a freshly issued session token.
type TokenResponse struct {
	Token string `json:"token"`
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	tokens     TokenIssuer
	users      UserLookup
	principals session.PrincipalStore
	cookies    CookieConfig
	logger     *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tokens TokenIssuer, users UserLookup, principals session.PrincipalStore, cookies CookieConfig, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		tokens:     tokens,
		users:      users,
		principals: principals,
		cookies:    cookies,
		logger:     logger,
	}
}

// RegisterRoutes registers auth routes on a router with the /api/auth prefix.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/validate", h.Validate).Methods(http.MethodGet)
	r.HandleFunc("/user", h.GetUser).Methods(http.MethodGet)
	r.HandleFunc("/token", h.GetToken).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/oauth-user", h.GetOAuthUser).Methods(http.MethodGet)
}

// Validate reports that the bearer token passed the gate.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if request.ClaimsFromContext(r) == nil {
		respondUnauthorized(w, "Invalid or expired token")
		return
	}
	respondJSON(w, http.StatusOK, true)
}

// GetUser returns the directory row for the bearer token's subject.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	claims := request.ClaimsFromContext(r)
	if claims == nil {
		respondUnauthorized(w, "Invalid or expired token")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), claims.Subject)
	if errors.Is(err, directory.ErrNotFound) {
		respondUnauthorized(w, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_load_user",
			zap.String("email", logpkg.MaskEmail(claims.Subject)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondInternalError(w)
		return
	}

	respondJSON(w, http.StatusOK, profileOf(user))
}

// GetToken issues a fresh token for the OAuth2 session principal.
func (h *AuthHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}

	tok, err := h.tokens.IssueFor(r.Context(), session.LocalUser(&models.User{ID: userID}))
	if session.IsUnauthenticated(err) {
		respondUnauthorized(w, "Not logged in")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_issue_token",
			zap.Int64("user_id", userID),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondInternalError(w)
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{Token: tok})
}

// GetOAuthUser returns the provider profile of the OAuth2 session principal.
func (h *AuthHandler) GetOAuthUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if errors.Is(err, directory.ErrNotFound) {
		respondUnauthorized(w, "Not logged in")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_load_user",
			zap.Int64("user_id", userID),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondInternalError(w)
		return
	}

	claims, err := session.LocalUser(user).Claims()
	if err != nil {
		respondUnauthorized(w, "Not logged in")
		return
	}

	respondJSON(w, http.StatusOK, OAuthUser{
		Email:       claims.Subject,
		Name:        claims.Name,
		Picture:     claims.Picture,
		GithubID:    claims.GithubID,
		GithubLogin: claims.GithubLogin,
	})
}

// Logout forgets the OAuth2 session principal. Issued tokens stay valid
// until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := cookieValue(r, principalCookieName); sid != "" {
		if err := h.principals.Delete(r.Context(), sid); err != nil {
			h.logger.Warn("failed_to_delete_principal",
				zap.String("error", logpkg.SanitizeError(err)),
			)
		}
	}
	h.cookies.clear(w, principalCookieName)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// principal loads the user id behind the session cookie, writing a 401 or
// 500 response when there is none.
func (h *AuthHandler) principal(w http.ResponseWriter, r *http.Request) (int64, bool) {
	sid := cookieValue(r, principalCookieName)
	if sid == "" {
		respondUnauthorized(w, "Not logged in")
		return 0, false
	}

	userID, err := h.principals.Load(r.Context(), sid)
	if errors.Is(err, session.ErrPrincipalNotFound) {
		h.cookies.clear(w, principalCookieName)
		respondUnauthorized(w, "Not logged in")
		return 0, false
	}
	if err != nil {
		h.logger.Error("failed_to_load_principal",
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondInternalError(w)
		return 0, false
	}
	return userID, true
}
