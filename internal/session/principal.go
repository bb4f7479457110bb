package session

import (
	"errors"
	"fmt"

	"github.com/benvon/authgate/internal/models"
)

// ErrInvalidPrincipal is returned for principals that cannot produce claims.
var ErrInvalidPrincipal = errors.New("invalid principal")

// PrincipalKind tags the variant held by a Principal.
type PrincipalKind int

const (
	// PrincipalLocalUser is a directory user.
	PrincipalLocalUser PrincipalKind = iota + 1
	// PrincipalProvider is a provider identity not yet tied to a row.
	PrincipalProvider
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalLocalUser:
		return "local_user"
	case PrincipalProvider:
		return "provider"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Principal is whoever is authenticated on a login flow. Exactly one of
// User or Identity is set, as named by Kind.
type Principal struct {
	Kind     PrincipalKind
	User     *models.User
	Identity *models.ProviderIdentity
}

// LocalUser wraps a directory user.
func LocalUser(u *models.User) Principal {
	return Principal{Kind: PrincipalLocalUser, User: u}
}

// Provider wraps a resolved provider identity.
func Provider(identity *models.ProviderIdentity) Principal {
	return Principal{Kind: PrincipalProvider, Identity: identity}
}

// Claims builds the claim set the principal stands for. A provider principal
// has no local id yet, so its UserID is zero.
func (p Principal) Claims() (models.Claims, error) {
	switch p.Kind {
	case PrincipalLocalUser:
		if p.User == nil || p.User.Email == "" {
			return models.Claims{}, ErrInvalidPrincipal
		}
		return models.ClaimsForUser(p.User), nil
	case PrincipalProvider:
		if p.Identity == nil || p.Identity.Email == "" {
			return models.Claims{}, ErrInvalidPrincipal
		}
		c := models.Claims{
			Subject:     p.Identity.Email,
			GithubLogin: p.Identity.Login,
			Name:        p.Identity.DisplayName(),
			Picture:     p.Identity.AvatarURL,
		}
		if p.Identity.GithubID != 0 {
			id := p.Identity.GithubID
			c.GithubID = &id
		}
		return c, nil
	default:
		return models.Claims{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidPrincipal, p.Kind)
	}
}
