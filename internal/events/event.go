// Package events publishes login lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/benvon/authgate/internal/models"
	"github.com/google/uuid"
)

// Type names an event; it doubles as the routing key.
type Type string

const (
	// TypeUserSignedIn is published after every successful login.
	TypeUserSignedIn Type = "user.signed_in"
)

// Event is the JSON envelope published to the exchange.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	GithubID   *int64    `json:"github_id,omitempty"`
	NewUser    bool      `json:"new_user"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSignedIn builds a user.signed_in event for user.
func NewSignedIn(user *models.User, newUser bool) *Event {
	e := &Event{
		ID:         uuid.New(),
		Type:       TypeUserSignedIn,
		UserID:     user.ID,
		Email:      user.Email,
		NewUser:    newUser,
		OccurredAt: time.Now().UTC(),
	}
	if user.GithubID != nil {
		id := *user.GithubID
		e.GithubID = &id
	}
	return e
}

// Publisher publishes events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// HealthCheck implements Publisher.
func (NopPublisher) HealthCheck(context.Context) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
