// Package session keeps the signed-in state of each browser session on the
// server. The browser only ever holds the opaque browser session cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidSession = errors.New("session: missing identity or tokens")

// Session is the token pair held for one browser session.
type Session struct {
	IdentityID      uuid.UUID `json:"identityId"`
	Email           string    `json:"email"`
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
	RefreshToken    string    `json:"refreshToken"`
}

func (s Session) validate() error {
	if s.IdentityID == uuid.Nil || s.AccessToken == "" || s.RefreshToken == "" {
		return ErrInvalidSession
	}
	return nil
}

// Store persists sessions by browser session ID. Get returns nil, nil when
// there is no session.
type Store interface {
	Get(ctx context.Context, browserSessionID string) (*Session, error)
	Save(ctx context.Context, browserSessionID string, s Session) error
	Delete(ctx context.Context, browserSessionID string) error
}
