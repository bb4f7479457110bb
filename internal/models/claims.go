package models

import "time"

// Claims is the claim set carried by an issued session token.
// JSON names match the token wire format consumed by other services.
type Claims struct {
	Subject     string    `json:"sub"`    // User email
	UserID      int64     `json:"userId"` // Internal user id
	GithubID    *int64    `json:"githubId,omitempty"`
	GithubLogin string    `json:"githubLogin,omitempty"`
	Name        string    `json:"name,omitempty"`
	Picture     string    `json:"picture,omitempty"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// ClaimsForUser builds the claim set for a directory user. Timestamps are set on issue.
func ClaimsForUser(u *User) Claims {
	c := Claims{
		Subject: u.Email,
		UserID:  u.ID,
		Name:    u.Name,
		Picture: u.Picture,
	}
	if u.GithubID != nil {
		id := *u.GithubID
		c.GithubID = &id
	}
	if u.GithubLogin != nil {
		c.GithubLogin = *u.GithubLogin
	}
	return c
}
