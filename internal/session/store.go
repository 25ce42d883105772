package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrSessionExists = errors.New("session: id already in use")

// Session represents an authenticated back-office session.
// It stores identity pointers only, never provider tokens.
type Session struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`        // references users.id
	LoginProvider     string    `json:"login_provider"` // "local" or the external issuer
	CreatedAt         time.Time `json:"created_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) for unknown or expired sessions. Update never
// recreates a session that is gone and deletes one moved into the past.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}

// newTTL validates a session for Create and returns its remaining lifetime.
func newTTL(s Session) (time.Duration, error) {
	if s.SessionID == "" || s.UserID == "" {
		return 0, fmt.Errorf("session: missing session_id or user_id")
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return 0, fmt.Errorf("session: expires_at must be in the future")
	}
	return ttl, nil
}
