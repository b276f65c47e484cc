// Package session resolves bearer tokens to the signed-in user.
package session

import (
	"context"
	"errors"
)

// ErrNoSession is returned for a missing, expired or revoked token.
var ErrNoSession = errors.New("session not found or expired")

// User is the signed-in user as seen by request handlers.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	ExternalID  string `json:"externalId"`
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the signed-in user, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	if !ok || u.ID == "" {
		return User{}, false
	}
	return u, true
}

// Resolver looks up the user behind a bearer token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (User, error)
}
