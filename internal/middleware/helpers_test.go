package middleware

import "github.com/benvon/authgate/internal/models"

func sampleClaims() models.Claims {
	id := int64(42)
	return models.Claims{Subject: "a@x.com", UserID: 1, GithubID: &id, GithubLogin: "ann", Name: "Ann"}
}
