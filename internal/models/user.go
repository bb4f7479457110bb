package models

import (
	"time"
)

// User represents a user in the system
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Picture     string    `json:"picture,omitempty"`
	GithubID    *int64    `json:"github_id,omitempty"`
	GithubLogin *string   `json:"github_login,omitempty"`
	PublicRepos *int      `json:"public_repos,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Merge refreshes the user's profile from a resolved provider identity.
// Key fields (email, github id, github login) are only overwritten with
// non-empty values so a partial identity never clears them.
func (u *User) Merge(identity *ProviderIdentity) {
	if identity == nil {
		return
	}
	if identity.Email != "" {
		u.Email = identity.Email
	}
	if name := identity.DisplayName(); name != "" {
		u.Name = name
	}
	if identity.AvatarURL != "" {
		u.Picture = identity.AvatarURL
	}
	if identity.GithubID != 0 {
		id := identity.GithubID
		u.GithubID = &id
	}
	if identity.Login != "" {
		login := identity.Login
		u.GithubLogin = &login
	}
	if identity.ReposResolved {
		count := identity.PublicRepoCount()
		u.PublicRepos = &count
	}
}

// NewUserFromIdentity builds an unsaved user row for a never-seen identity.
func NewUserFromIdentity(identity *ProviderIdentity) *User {
	u := &User{}
	u.Merge(identity)
	return u
}
