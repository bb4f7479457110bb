package models

// ProviderIdentity is the identity resolved from a single GitHub OAuth2 login.
// It lives for one callback only and is never persisted as is.
type ProviderIdentity struct {
	// Attributes is the raw attribute mapping returned by the provider's /user endpoint.
	Attributes map[string]any `json:"-"`

	// Login is taken as GitHub reports it. Legacy handles may end in or
	// repeat hyphens, so only the length is bounded.
	GithubID  int64  `json:"github_id"`
	Login     string `json:"login" validate:"omitempty,max=39"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
	Email     string `json:"email" validate:"required,email"`

	// PublicRepos holds the provider's repository objects; only the count is used.
	PublicRepos []map[string]any `json:"-"`
	// ReposResolved is false when the repository lookup degraded.
	ReposResolved bool `json:"-"`
}

// DisplayName returns the provider name, falling back to the login handle.
func (p *ProviderIdentity) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Login
}

// PublicRepoCount returns the number of public repositories resolved for the identity.
func (p *ProviderIdentity) PublicRepoCount() int {
	return len(p.PublicRepos)
}
